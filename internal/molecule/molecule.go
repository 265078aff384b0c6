package molecule

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Molecule is a single molecule held as structure-file content.
type Molecule struct {
	Name       string
	Format     string // format tag, e.g. PDB or MOL2
	Data       []byte
	Properties map[string]string
}

// Extension returns the file extension matching the molecule's format.
func (m *Molecule) Extension() string {
	if ext, ok := ExtensionFor(m.Format); ok {
		return ext
	}
	return "." + strings.ToLower(m.Format)
}

// Identity returns a canonical byte encoding of the molecule's value. Equal
// molecules produce equal identities regardless of property map order.
func (m *Molecule) Identity() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "name=%s\x00format=%s\x00", m.Name, m.Format)
	for _, k := range sortedKeys(m.Properties) {
		fmt.Fprintf(&b, "prop:%s=%s\x00", k, m.Properties[k])
	}
	fmt.Fprintf(&b, "data:%d\x00", len(m.Data))
	b.Write(m.Data)
	return b.Bytes()
}

// WriteFile writes the structure data into dir as <base><ext> and returns the path.
func (m *Molecule) WriteFile(dir, base string) (string, error) {
	path := filepath.Join(dir, base+m.Extension())
	if err := os.WriteFile(path, m.Data, 0o644); err != nil {
		return "", fmt.Errorf("write molecule %s: %w", m.Name, err)
	}
	return path, nil
}

// ReadMolecule loads a structure file. The format tag comes from the extension.
func ReadMolecule(name, path string) (*Molecule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read molecule file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensionFormats[ext]
	if !ok {
		format = strings.ToUpper(strings.TrimPrefix(ext, "."))
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &Molecule{Name: name, Format: format, Data: data, Properties: map[string]string{}}, nil
}

type moleculeDescriptor struct {
	Name       string            `yaml:"name"`
	File       string            `yaml:"file"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// LoadMolecule reads a YAML molecule descriptor pointing at a structure file.
func LoadMolecule(path string) (*Molecule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read molecule descriptor: %w", err)
	}

	var desc moleculeDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse molecule descriptor YAML: %w", err)
	}
	if desc.File == "" {
		return nil, fmt.Errorf("molecule descriptor %s has no file", path)
	}

	file := desc.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(path), file)
	}

	mol, err := ReadMolecule(desc.Name, file)
	if err != nil {
		return nil, err
	}
	for k, v := range desc.Properties {
		mol.Properties[k] = v
	}
	return mol, nil
}
