// Package config loads frdbg's optional YAML configuration. Command-line
// flags override anything set here.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// StubAddr is the host:port of the GDB remote stub.
	StubAddr string `yaml:"stub_addr"`
	// ListenAddr and ListenPort are where the debug server listens for
	// its client connection.
	ListenAddr string `yaml:"listen_addr"`
	ListenPort int    `yaml:"listen_port"`
	// MaxListItems caps a single kernel list traversal; zero keeps the
	// built-in default.
	MaxListItems int `yaml:"max_list_items"`
	// Cores overrides the probed core count, for images whose
	// pxCurrentTCBs array length does not match the running hardware.
	Cores int `yaml:"cores"`
	// HistoryFile overrides the terminal history location.
	HistoryFile string `yaml:"history_file"`
}

func Default() *Config {
	return &Config{
		StubAddr:   "localhost:3333",
		ListenAddr: "127.0.0.1",
		ListenPort: 9223,
	}
}

// Load reads the configuration at path. An empty path or a missing file
// yields the defaults; a file that exists but does not parse is an error,
// so a typo never silently reverts the operator to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return cfg, nil
}
