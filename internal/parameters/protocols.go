package parameters

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/molecule"
)

// InputPlaceholder in External.Args is replaced by the staged input file name.
const InputPlaceholder = "{input}"

// External runs a parameterisation tool such as tleap, antechamber or
// pdb2gmx in the work directory. The input molecule is written there as
// input.<ext>; on success the tool must leave Output behind.
type External struct {
	Label  string
	Exe    string
	Args   []string
	Output string // file name relative to the work dir
	Format string // format tag of Output; inferred from its extension if empty
}

var _ Protocol = External{}

type externalDescriptor struct {
	Label  string   `yaml:"label"`
	Exe    string   `yaml:"exe"`
	Args   []string `yaml:"args"`
	Output string   `yaml:"output"`
	Format string   `yaml:"format,omitempty"`
}

// LoadExternal reads an External protocol from a YAML file.
func LoadExternal(path string) (External, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return External{}, fmt.Errorf("failed to read protocol file: %w", err)
	}
	var d externalDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return External{}, fmt.Errorf("failed to parse protocol YAML: %w", err)
	}
	if d.Exe == "" {
		return External{}, fmt.Errorf("protocol %s: exe is required", path)
	}
	if d.Output == "" {
		return External{}, fmt.Errorf("protocol %s: output is required", path)
	}
	return External(d), nil
}

func (e External) Name() string {
	if e.Label != "" {
		return e.Label
	}
	return filepath.Base(e.Exe)
}

func (e External) Identity() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "external\x00exe=%s\x00output=%s\x00format=%s\x00", e.Exe, e.Output, e.Format)
	for _, a := range e.Args {
		fmt.Fprintf(&b, "arg=%s\x00", a)
	}
	return b.Bytes()
}

func (e External) Run(mol *molecule.Molecule, workDir string, result chan<- *molecule.Molecule) {
	logger := log.WithComponent("parameters").With("protocol", e.Name(), "work_dir", workDir)

	out, err := e.run(mol, workDir)
	if err != nil {
		logger.Error("parameterisation tool failed", "error", err)
		result <- nil
		return
	}
	result <- out
}

func (e External) run(mol *molecule.Molecule, workDir string) (*molecule.Molecule, error) {
	if e.Exe == "" {
		return nil, fmt.Errorf("no executable configured")
	}
	if e.Output == "" {
		return nil, fmt.Errorf("no output file configured")
	}

	input, err := mol.WriteFile(workDir, "input")
	if err != nil {
		return nil, err
	}

	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = strings.ReplaceAll(a, InputPlaceholder, filepath.Base(input))
	}

	stdout, err := os.Create(filepath.Join(workDir, e.Name()+".out"))
	if err != nil {
		return nil, fmt.Errorf("create stdout file: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(workDir, e.Name()+".err"))
	if err != nil {
		return nil, fmt.Errorf("create stderr file: %w", err)
	}
	defer stderr.Close()

	cmd := exec.Command(e.Exe, args...)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w", e.Exe, err)
	}

	outPath := filepath.Join(workDir, e.Output)
	param, err := molecule.ReadMolecule(mol.Name, outPath)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", e.Name(), err)
	}
	if e.Format != "" {
		param.Format = e.Format
	}
	for k, v := range mol.Properties {
		if _, ok := param.Properties[k]; !ok {
			param.Properties[k] = v
		}
	}
	param.Properties["parameterisation"] = e.Name()
	return param, nil
}

// Func adapts an in-process function to Protocol. Key distinguishes
// otherwise identically named functions in the job hash.
type Func struct {
	Label string
	Key   string
	Fn    func(mol *molecule.Molecule, workDir string) (*molecule.Molecule, error)
}

var _ Protocol = Func{}

func (f Func) Name() string     { return f.Label }
func (f Func) Identity() []byte { return []byte("func\x00" + f.Label + "\x00" + f.Key) }

func (f Func) Run(mol *molecule.Molecule, workDir string, result chan<- *molecule.Molecule) {
	out, err := f.Fn(mol, workDir)
	if err != nil {
		log.WithComponent("parameters").Error("parameterisation failed", "protocol", f.Label, "error", err)
		result <- nil
		return
	}
	result <- out
}
