package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/ledger"
	"github.com/mattjoyce/mdrun/internal/protocol"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCLIForTest(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

func unsetEnvForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// testEnv lays out a config whose AMBER installation holds a single fake
// sander script, plus an AMBER system descriptor.
type testEnv struct {
	dir    string
	config string
	system string
	sander string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	unsetEnvForTest(t, engine.AmberHomeEnv)
	unsetEnvForTest(t, "JPY_PARENT_PID")
	unsetEnvForTest(t, "MDRUN_CONFIG")

	dir := t.TempDir()
	sander := writeFile(t, filepath.Join(dir, "amber", "bin", "sander"),
		"#!/bin/sh\necho \"sander $*\"\necho \"final energy -42.0\"\n", 0o755)

	config := writeFile(t, filepath.Join(dir, "config.yaml"), `
service:
  log_level: error
  log_format: text
state:
  path: data/ledger.db
workspace:
  base_dir: data/workspaces
engines:
  amber_home: amber
parameters:
  archive_dir: archives
  protocols:
    copy: protocols/copy.yaml
    broken: protocols/broken.yaml
`, 0o644)

	writeFile(t, filepath.Join(dir, "protocols", "copy.yaml"), `
label: copy
exe: `+filepath.Join(dir, "tools", "copy.sh")+`
args: ["{input}", "out.pdb"]
output: out.pdb
`, 0o644)
	writeFile(t, filepath.Join(dir, "tools", "copy.sh"), "#!/bin/sh\ncp \"$1\" \"$2\"\n", 0o755)
	writeFile(t, filepath.Join(dir, "protocols", "broken.yaml"), `
label: broken
exe: `+filepath.Join(dir, "tools", "broken.sh")+`
output: out.pdb
`, 0o644)
	writeFile(t, filepath.Join(dir, "tools", "broken.sh"), "#!/bin/sh\necho boom >&2\nexit 1\n", 0o755)

	writeFile(t, filepath.Join(dir, "sys", "ala.prm7"), "prm7\n", 0o644)
	writeFile(t, filepath.Join(dir, "sys", "ala.rst7"), "rst7\n", 0o644)
	system := writeFile(t, filepath.Join(dir, "sys", "ala.yaml"), "name: ala\nfiles: [ala.prm7, ala.rst7]\n", 0o644)

	return testEnv{dir: dir, config: config, system: system, sander: sander}
}

func TestRunCLINoArgs(t *testing.T) {
	code, stdout, _ := runCLIForTest(t)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Fatalf("stdout missing usage: %q", stdout)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "frobnicate")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05+02:00")

	code, stdout, stderr := runCLIForTest(t, "version", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	var got versionInfo
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode version JSON: %v\n%s", err, stdout)
	}
	want := versionInfo{Version: "1.2.3", Commit: "0123456789ab", BuildTime: "2026-01-02T01:04:05Z"}
	if got != want {
		t.Fatalf("version = %+v, want %+v", got, want)
	}
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "version", "extra")
	if code != 1 || !strings.Contains(stderr, "Usage: mdrun version") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}

func TestNounHelp(t *testing.T) {
	for _, noun := range []string{"runs", "jobs", "workspace"} {
		t.Run(noun, func(t *testing.T) {
			code, stdout, _ := runCLIForTest(t, noun, "help")
			if code != 0 {
				t.Fatalf("exit code = %d", code)
			}
			if !strings.Contains(stdout, "Usage: mdrun "+noun) {
				t.Fatalf("stdout = %q", stdout)
			}

			code, _, stderr := runCLIForTest(t, noun, "bogus")
			if code != 1 || !strings.Contains(stderr, "Unknown "+noun+" action: bogus") {
				t.Fatalf("code = %d, stderr = %q", code, stderr)
			}
		})
	}
}

func TestRunRequiresSystemAndProtocol(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "run", "--system", "x.yaml")
	if code != 1 || !strings.Contains(stderr, "Usage: mdrun run") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}

func TestLoadProtocol(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, filepath.Join(dir, "prod.yaml"), "type: production\nruntime: 10 ps\ntimestep: 2 fs\n", 0o644)

	tests := []struct {
		arg  string
		want protocol.Kind
	}{
		{arg: "minimisation", want: protocol.KindMinimisation},
		{arg: "Equilibration", want: protocol.KindEquilibration},
		{arg: "production", want: protocol.KindProduction},
		{arg: yamlPath, want: protocol.KindProduction},
	}
	for _, tt := range tests {
		got, err := loadProtocol(tt.arg)
		if err != nil {
			t.Fatalf("loadProtocol(%q): %v", tt.arg, err)
		}
		p, ok := got.(protocol.Protocol)
		if !ok || p.Kind() != tt.want {
			t.Fatalf("loadProtocol(%q) = %#v, want kind %s", tt.arg, got, tt.want)
		}
	}

	got, err := loadProtocol("amber.in")
	if err != nil {
		t.Fatalf("loadProtocol(amber.in): %v", err)
	}
	if got != "amber.in" {
		t.Fatalf("engine config path should pass through, got %#v", got)
	}
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := runCLIForTest(t, "resolve", "--config", env.config, "--system", env.system, "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if got["package"] != engine.Amber || got["exe"] != env.sander || got["fileformat"] != "PRM7,RST7" {
		t.Fatalf("resolve = %v", got)
	}
}

func TestResolveUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.dir, "sys", "lig.mol2"), "mol2\n", 0o644)
	sys := writeFile(t, filepath.Join(env.dir, "sys", "lig.yaml"), "files: [lig.mol2]\n", 0o644)

	code, _, stderr := runCLIForTest(t, "resolve", "--config", env.config, "--system", sys)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2; stderr = %q", code, stderr)
	}
}

func TestPackagesJSON(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := runCLIForTest(t, "packages", "--config", env.config, "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	var report []engine.PackageStatus
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	var amber *engine.PackageStatus
	for i := range report {
		if report[i].Package == engine.Amber {
			amber = &report[i]
		}
	}
	if amber == nil {
		t.Fatalf("AMBER missing from %+v", report)
	}
	if amber.Selected != env.sander {
		t.Fatalf("AMBER selected = %q, want %q", amber.Selected, env.sander)
	}
}

func TestPackagesTable(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, _ := runCLIForTest(t, "packages", "--config", env.config)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"PACKAGE", "pmemd.cuda", "sander", env.sander, "GROMACS", "namd2"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("table missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunPrepareOnly(t *testing.T) {
	env := newTestEnv(t)
	workDir := filepath.Join(env.dir, "prep")

	code, stdout, stderr := runCLIForTest(t, "run",
		"--config", env.config,
		"--system", env.system,
		"--protocol", "minimisation",
		"--work-dir", workDir,
		"--prepare-only",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "package:  AMBER") {
		t.Fatalf("stdout = %q", stdout)
	}
	for _, name := range []string{"md.cfg", "md.prm7", "md.rst7", "README.txt"} {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			t.Fatalf("expected %s in work dir: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(workDir, "md.out")); !os.IsNotExist(err) {
		t.Fatalf("engine should not have run, stat md.out: %v", err)
	}
}

func TestRunWaitsAndRecords(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := runCLIForTest(t, "run",
		"--config", env.config,
		"--system", env.system,
		"--protocol", "production",
		"--name", "prod",
		"--seed", "7",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "final energy -42.0") {
		t.Fatalf("stdout missing engine tail: %q", stdout)
	}

	code, stdout, stderr = runCLIForTest(t, "runs", "list", "--config", env.config, "--json")
	if code != 0 {
		t.Fatalf("runs list exit code = %d, stderr = %q", code, stderr)
	}
	var runs []ledger.Run
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, stdout)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Status != ledger.StatusSucceeded || r.Name != "prod" || r.Package != engine.Amber {
		t.Fatalf("run = %+v", r)
	}
	if !strings.HasPrefix(r.WorkDir, filepath.Join(env.dir, "data", "workspaces")) {
		t.Fatalf("work dir %q not under the workspace base", r.WorkDir)
	}

	code, stdout, _ = runCLIForTest(t, "runs", "show", "--config", env.config, r.ID)
	if code != 0 || !strings.Contains(stdout, r.ID) || !strings.Contains(stdout, "sander") {
		t.Fatalf("runs show code = %d, stdout = %q", code, stdout)
	}

	code, stdout, _ = runCLIForTest(t, "workspace", "list", "--config", env.config)
	if code != 0 || !strings.Contains(stdout, r.WorkDir) {
		t.Fatalf("workspace list code = %d, stdout = %q", code, stdout)
	}
}

func TestRunsShowNotFound(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := runCLIForTest(t, "runs", "show", "--config", env.config, "missing")
	if code != 1 || !strings.Contains(stderr, "Run not found: missing") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}

func TestParameteriseSuccess(t *testing.T) {
	env := newTestEnv(t)
	mol := writeFile(t, filepath.Join(env.dir, "mol", "lig.pdb"), "ATOM      1  C\n", 0o644)
	outDir := filepath.Join(env.dir, "out")

	code, stdout, stderr := runCLIForTest(t, "parameterise",
		"--config", env.config,
		"--molecule", mol,
		"--protocol", "copy",
		"--out", outDir,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	want := filepath.Join(outDir, "lig.pdb")
	if strings.TrimSpace(stdout) != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "ATOM      1  C\n" {
		t.Fatalf("result = %q, %v", data, err)
	}

	code, stdout, _ = runCLIForTest(t, "jobs", "list", "--config", env.config, "--json")
	if code != 0 || !strings.Contains(stdout, `"status": "succeeded"`) {
		t.Fatalf("jobs list code = %d, stdout = %q", code, stdout)
	}
}

func TestParameteriseFailureArchives(t *testing.T) {
	env := newTestEnv(t)
	mol := writeFile(t, filepath.Join(env.dir, "mol", "lig.pdb"), "ATOM\n", 0o644)

	code, stdout, _ := runCLIForTest(t, "parameterise",
		"--config", env.config,
		"--molecule", mol,
		"--protocol", "broken",
	)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "Parameterisation failed! Check output: '") {
		t.Fatalf("stdout = %q", stdout)
	}

	matches, err := filepath.Glob(filepath.Join(env.dir, "archives", "*.zip"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("archives = %v, %v", matches, err)
	}
}

func TestParameteriseUnknownProtocol(t *testing.T) {
	env := newTestEnv(t)
	mol := writeFile(t, filepath.Join(env.dir, "mol", "lig.pdb"), "ATOM\n", 0o644)

	code, _, stderr := runCLIForTest(t, "parameterise", "--config", env.config, "--molecule", mol, "--protocol", "nope")
	if code != 1 || !strings.Contains(stderr, `unknown protocol "nope"`) {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}

func TestWorkspaceCleanEmpty(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := runCLIForTest(t, "workspace", "clean", "--config", env.config, "--older-than", "1h")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "removed 0 workspace(s)") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestServeRequiresEnabledAPI(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := runCLIForTest(t, "serve", "--config", env.config)
	if code != 1 || !strings.Contains(stderr, "API is disabled") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}
