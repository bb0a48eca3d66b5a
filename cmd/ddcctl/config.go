package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config but with YAML-friendly field types (plain
// seconds rather than time.Duration) for the optional overlay file.
type fileConfig struct {
	TimeoutSeconds *int  `yaml:"timeout_seconds"`
	WaitForLock    *bool `yaml:"wait_for_lock"`
}

// loadConfig returns the built-in defaults, overlaid with path's contents
// if given. An empty path is not an error; a file that cannot be read or
// does not parse is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, err
	}

	if fc.TimeoutSeconds != nil {
		cfg.Timeout = time.Duration(*fc.TimeoutSeconds) * time.Second
	}
	if fc.WaitForLock != nil {
		cfg.WaitForLock = *fc.WaitForLock
	}
	return cfg, nil
}
