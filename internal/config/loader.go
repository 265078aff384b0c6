// Package config loads mdrun's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvConfigPath names the environment variable that overrides discovery.
const EnvConfigPath = "MDRUN_CONFIG"

// Load reads a configuration file. Files listed under include are applied
// first, in order, and the including file is applied last so its values win.
// A directory argument means <dir>/config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	root, err := readInterpolated(absPath)
	if err != nil {
		return nil, err
	}

	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(root, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", absPath, err)
	}

	cfg := Defaults()
	baseDir := filepath.Dir(absPath)
	for i, inc := range head.Include {
		incPath := interpolateEnv(inc)
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		data, err := readInterpolated(incPath)
		if err != nil {
			return nil, fmt.Errorf("include[%d]: %w", i, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("include[%d]: failed to parse %s: %w", i, incPath, err)
		}
	}
	if err := yaml.Unmarshal(root, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", absPath, err)
	}

	cfg.resolvePaths(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover returns the first configuration file found in: $MDRUN_CONFIG,
// ~/.config/mdrun/config.yaml, /etc/mdrun/config.yaml, ./mdrun.yaml.
// It returns "" when none exists.
func Discover() string {
	var candidates []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		candidates = append(candidates, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mdrun", "config.yaml"))
	}
	candidates = append(candidates, "/etc/mdrun/config.yaml", "./mdrun.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func readInterpolated(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return []byte(interpolateEnv(string(data))), nil
}

// interpolateEnv replaces ${VAR} with its value. Unset variables are left in
// place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// resolvePaths makes relative filesystem settings relative to the config file.
func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.State.Path, &c.Workspace.BaseDir, &c.Parameters.ArchiveDir, &c.Engines.AmberHome} {
		if *p != "" && !filepath.IsAbs(*p) && !envVarPattern.MatchString(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	for name, p := range c.Parameters.Protocols {
		if p != "" && !filepath.IsAbs(p) {
			c.Parameters.Protocols[name] = filepath.Join(baseDir, p)
		}
	}
}

// Validate checks required fields and unresolved environment references.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", c.Service.LogLevel)
	}
	if f := strings.ToLower(c.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", c.Service.LogFormat)
	}

	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.Workspace.BaseDir == "" {
		return fmt.Errorf("workspace.base_dir is required")
	}
	if c.Workspace.Retention < 0 {
		return fmt.Errorf("workspace.retention must not be negative")
	}
	if c.Parameters.ArchiveDir == "" {
		return fmt.Errorf("parameters.archive_dir is required")
	}

	for field, v := range map[string]string{
		"state.path":             c.State.Path,
		"workspace.base_dir":     c.Workspace.BaseDir,
		"engines.amber_home":     c.Engines.AmberHome,
		"parameters.archive_dir": c.Parameters.ArchiveDir,
	} {
		if err := unresolved(field, v); err != nil {
			return err
		}
	}

	if c.API.Enabled {
		if c.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if err := unresolved("api.api_key", c.API.APIKey); err != nil {
			return err
		}
	}
	return nil
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}
