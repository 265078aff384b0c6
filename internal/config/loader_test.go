package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, dir string, cfg *Config)
	}{
		{
			name: "empty file gets defaults",
			yaml: "{}\n",
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.Service.LogLevel != "info" {
					t.Errorf("log_level = %q, want info", cfg.Service.LogLevel)
				}
				if cfg.State.Path != filepath.Join(dir, "data", "ledger.db") {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.Workspace.Retention != 7*24*time.Hour {
					t.Errorf("retention = %v", cfg.Workspace.Retention)
				}
				if cfg.API.Enabled {
					t.Error("api enabled by default")
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  log_level: debug
  log_format: text
state:
  path: /var/lib/mdrun/ledger.db
workspace:
  base_dir: runs
  retention: 48h
engines:
  use_gpu: true
  amber_home: /opt/amber22
parameters:
  archive_dir: failed
  protocols:
    gaff: protocols/gaff.yaml
api:
  enabled: true
  listen: 0.0.0.0:9000
  api_key: secret
`,
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.Service.LogFormat != "text" {
					t.Errorf("log_format = %q", cfg.Service.LogFormat)
				}
				if cfg.State.Path != "/var/lib/mdrun/ledger.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.Workspace.BaseDir != filepath.Join(dir, "runs") {
					t.Errorf("workspace.base_dir = %q", cfg.Workspace.BaseDir)
				}
				if cfg.Workspace.Retention != 48*time.Hour {
					t.Errorf("retention = %v", cfg.Workspace.Retention)
				}
				if !cfg.Engines.UseGPU || cfg.Engines.AmberHome != "/opt/amber22" {
					t.Errorf("engines = %+v", cfg.Engines)
				}
				if cfg.Parameters.Protocols["gaff"] != filepath.Join(dir, "protocols", "gaff.yaml") {
					t.Errorf("protocols = %v", cfg.Parameters.Protocols)
				}
				if cfg.API.Listen != "0.0.0.0:9000" || cfg.API.APIKey != "secret" {
					t.Errorf("api = %+v", cfg.API)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  api_key: ${MDRUN_TEST_KEY}
`,
			env: map[string]string{"MDRUN_TEST_KEY": "from-env"},
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.API.APIKey != "from-env" {
					t.Errorf("api_key = %q", cfg.API.APIKey)
				}
			},
		},
		{
			name: "unset env var",
			yaml: `
api:
  enabled: true
  api_key: ${MDRUN_TEST_UNSET_KEY}
`,
			wantErr: "${MDRUN_TEST_UNSET_KEY} is not set",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.checkFn(t, dir, cfg)
		})
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engines.yaml", "engines:\n  use_gpu: true\nservice:\n  log_level: warn\n")
	writeConfig(t, dir, "api.yaml", "api:\n  enabled: true\n  api_key: k\n")
	path := writeConfig(t, dir, "config.yaml", `
include:
  - engines.yaml
  - api.yaml
service:
  log_level: error
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Engines.UseGPU {
		t.Error("include not applied")
	}
	if !cfg.API.Enabled || cfg.API.APIKey != "k" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Service.LogLevel != "error" {
		t.Errorf("root file should win, log_level = %q", cfg.Service.LogLevel)
	}
}

func TestLoadMissingInclude(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "include: [nope.yaml]\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "include[0]") {
		t.Fatalf("Load() error = %v, want include error", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "engines:\n  use_gpu: true\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Engines.UseGPU {
		t.Error("config.yaml in directory not loaded")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("MDRUN_TEST_HOME", "/opt/amber")
	tests := []struct {
		in, want string
	}{
		{"${MDRUN_TEST_HOME}/bin", "/opt/amber/bin"},
		{"plain", "plain"},
		{"${MDRUN_TEST_NOT_SET}", "${MDRUN_TEST_NOT_SET}"},
		{"$MDRUN_TEST_HOME", "$MDRUN_TEST_HOME"},
	}
	for _, tt := range tests {
		if got := interpolateEnv(tt.in); got != tt.want {
			t.Errorf("interpolateEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no state path", mutate: func(c *Config) { c.State.Path = "" }, wantErr: "state.path"},
		{name: "no workspace", mutate: func(c *Config) { c.Workspace.BaseDir = "" }, wantErr: "workspace.base_dir"},
		{name: "negative retention", mutate: func(c *Config) { c.Workspace.Retention = -time.Hour }, wantErr: "retention"},
		{name: "bad format", mutate: func(c *Config) { c.Service.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "no archive dir", mutate: func(c *Config) { c.Parameters.ArchiveDir = "" }, wantErr: "archive_dir"},
		{name: "api without listen", mutate: func(c *Config) { c.API.Enabled = true; c.API.Listen = "" }, wantErr: "api.listen"},
		{name: "unresolved amber home", mutate: func(c *Config) { c.Engines.AmberHome = "${AMBER_ROOT}" }, wantErr: "engines.amber_home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.yaml", "{}\n")
	t.Setenv(EnvConfigPath, path)
	if got := Discover(); got != path {
		t.Fatalf("Discover() = %q, want %q", got, path)
	}
}
