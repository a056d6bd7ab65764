// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for toolbench.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version" json:"version"`

	// DataDir holds the session database and the audit log.
	// Defaults to $XDG_DATA_HOME/toolbench.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`

	// Environments is the environments root handed to modules.
	// Defaults to ./environments.
	Environments string `yaml:"environments,omitempty" json:"environments,omitempty"`

	Log   LogConfig   `yaml:"log,omitempty" json:"log"`
	Audit AuditConfig `yaml:"audit,omitempty" json:"audit"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "engine.replay").
	Modules map[string]yaml.Node `yaml:"modules" json:"-"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// AuditConfig controls the audit log.
type AuditConfig struct {
	// Path of the JSONL audit file. Relative paths are resolved against
	// DataDir. Defaults to audit.jsonl.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Disabled turns audit logging off.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}
