package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type header struct {
	Type Kind `yaml:"type"`
}

// Load reads a YAML protocol file. The type key selects the variant:
//
//	type: production
//	runtime: 2 ns
//	timestep: 2 fs
//	temperature: 310
//
// A custom protocol's config path is resolved against the file's directory.
func Load(path string) (Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("protocol %s: %w", path, err)
	}
	if c, ok := p.(Custom); ok && !filepath.IsAbs(c.ConfigPath) {
		c.ConfigPath = filepath.Join(filepath.Dir(path), c.ConfigPath)
		p = c
	}
	return p, nil
}

// Parse decodes a YAML protocol document. Fields not given keep the variant's defaults.
func Parse(data []byte) (Protocol, error) {
	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse protocol YAML: %w", err)
	}

	var (
		p   Protocol
		err error
	)
	switch Kind(strings.ToLower(string(h.Type))) {
	case KindMinimisation:
		v := NewMinimisation()
		err = decodeInto(data, &v)
		p = v
	case KindEquilibration:
		v := NewEquilibration()
		err = decodeInto(data, &v)
		p = v
	case KindProduction:
		v := NewProduction()
		err = decodeInto(data, &v)
		p = v
	case KindCustom:
		var v Custom
		err = decodeInto(data, &v)
		if err == nil && v.ConfigPath == "" {
			err = fmt.Errorf("custom protocol requires a config path")
		}
		p = v
	case "":
		return nil, fmt.Errorf("protocol type is required")
	default:
		return nil, fmt.Errorf("unknown protocol type %q (valid: minimisation, equilibration, production, custom)", h.Type)
	}
	if err != nil {
		return nil, err
	}
	if _, ok := p.(Custom); !ok {
		if err := Validate(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func decodeInto(data []byte, out any) error {
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode protocol fields: %w", err)
	}
	return nil
}
