package config

import "time"

// Config is the complete mdrun configuration.
type Config struct {
	Include    []string         `yaml:"include,omitempty"`
	Service    ServiceConfig    `yaml:"service"`
	State      StateConfig      `yaml:"state"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Engines    EnginesConfig    `yaml:"engines"`
	Parameters ParametersConfig `yaml:"parameters"`
	API        APIConfig        `yaml:"api,omitempty"`
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig locates the run ledger.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WorkspaceConfig controls auto-created MD work directories.
type WorkspaceConfig struct {
	BaseDir   string        `yaml:"base_dir"`
	Retention time.Duration `yaml:"retention"`
}

// EnginesConfig controls MD package resolution.
type EnginesConfig struct {
	UseGPU bool `yaml:"use_gpu"`
	// AmberHome is used only when AMBERHOME is not set in the environment.
	AmberHome string `yaml:"amber_home,omitempty"`
}

// ParametersConfig controls background parameterisation.
type ParametersConfig struct {
	ArchiveDir string `yaml:"archive_dir"`
	// Protocols maps a short name to an external protocol YAML file.
	Protocols map[string]string `yaml:"protocols,omitempty"`
}

// APIConfig defines the status API server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// Defaults returns a Config with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/ledger.db",
		},
		Workspace: WorkspaceConfig{
			BaseDir:   "./data/workspaces",
			Retention: 7 * 24 * time.Hour,
		},
		Parameters: ParametersConfig{
			ArchiveDir: ".",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
