// Package molecule holds the in-memory handles for molecular systems and
// single molecules. Both are caller-owned and treated as read-only.
package molecule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileFormatProperty is the system property naming its file format pair.
const FileFormatProperty = "fileformat"

// extensionFormats maps file extensions to Sire-style format tags.
var extensionFormats = map[string]string{
	".prm7":   "PRM7",
	".parm7":  "PRM7",
	".rst7":   "RST7",
	".rst":    "RST",
	".crd":    "RST",
	".top":    "GroTop",
	".grotop": "GroTop",
	".gro":    "Gro87",
	".psf":    "PSF",
	".pdb":    "PDB",
	".mol2":   "MOL2",
	".sdf":    "SDF",
}

// formatExtensions is the preferred extension for each format tag.
var formatExtensions = map[string]string{
	"PRM7":   ".prm7",
	"RST7":   ".rst7",
	"RST":    ".rst",
	"GroTop": ".top",
	"Gro87":  ".gro",
	"PSF":    ".psf",
	"PDB":    ".pdb",
	"MOL2":   ".mol2",
	"SDF":    ".sdf",
}

// ExtensionFor returns the preferred file extension for a format tag.
func ExtensionFor(tag string) (string, bool) {
	ext, ok := formatExtensions[tag]
	return ext, ok
}

// System is a molecular system described by its input files.
type System struct {
	Name       string
	Files      []string
	Properties map[string]string
}

// NewSystem builds a system from files. The fileformat property is inferred
// from the file extensions.
func NewSystem(name string, files ...string) (*System, error) {
	format, err := InferFileFormat(files)
	if err != nil {
		return nil, err
	}
	return &System{
		Name:       name,
		Files:      files,
		Properties: map[string]string{FileFormatProperty: format},
	}, nil
}

// Property returns a named property.
func (s *System) Property(key string) (string, bool) {
	if s == nil || s.Properties == nil {
		return "", false
	}
	v, ok := s.Properties[key]
	return v, ok
}

// FileFormat returns the comma-joined format pair, e.g. "PRM7,RST7".
func (s *System) FileFormat() string {
	v, _ := s.Property(FileFormatProperty)
	return v
}

// FileWithExtension returns the first file whose extension maps to tag.
func (s *System) FileWithExtension(tag string) (string, bool) {
	for _, f := range s.Files {
		if extensionFormats[strings.ToLower(filepath.Ext(f))] == tag {
			return f, true
		}
	}
	return "", false
}

// InferFileFormat maps each file's extension to a format tag and joins them.
func InferFileFormat(files []string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no files given")
	}
	tags := make([]string, 0, len(files))
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		tag, ok := extensionFormats[ext]
		if !ok {
			return "", fmt.Errorf("unrecognised file extension %q for %s", ext, f)
		}
		tags = append(tags, tag)
	}
	return strings.Join(tags, ","), nil
}

type systemDescriptor struct {
	Name       string            `yaml:"name"`
	FileFormat string            `yaml:"fileformat,omitempty"`
	Files      []string          `yaml:"files"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// LoadSystem reads a YAML system descriptor. Relative file paths resolve
// against the descriptor's directory.
func LoadSystem(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system descriptor: %w", err)
	}

	var desc systemDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse system descriptor YAML: %w", err)
	}
	if len(desc.Files) == 0 {
		return nil, fmt.Errorf("system descriptor %s lists no files", path)
	}

	baseDir := filepath.Dir(path)
	files := make([]string, len(desc.Files))
	for i, f := range desc.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(baseDir, f)
		}
		files[i] = f
	}

	props := make(map[string]string, len(desc.Properties)+1)
	for k, v := range desc.Properties {
		props[k] = v
	}

	format := strings.TrimSpace(desc.FileFormat)
	if format == "" {
		format, err = InferFileFormat(files)
		if err != nil {
			return nil, fmt.Errorf("infer fileformat: %w", err)
		}
	}
	props[FileFormatProperty] = format

	name := desc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &System{Name: name, Files: files, Properties: props}, nil
}

// sortedKeys returns map keys in lexical order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
