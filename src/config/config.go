package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig contains configuration for the language server subprocess
type ServerConfig struct {
	Command               string      `yaml:"command"`
	Args                  []string    `yaml:"args"`
	InitializationOptions interface{} `yaml:"initialization_options,omitempty"`
}

// Config contains the full tool configuration. The defaults target
// ocamllsp; a YAML file can point the tool at a different server or
// interface-file convention.
type Config struct {
	Server             ServerConfig `yaml:"server"`
	Language           string       `yaml:"language"`
	InterfaceExtension string       `yaml:"interface_extension"`
}

// DefaultConfig returns the built-in ocamllsp configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Command: "ocamllsp",
		},
		Language:           "ocaml",
		InterfaceExtension: ".mli",
	}
}

// LoadConfig loads configuration from a YAML file, filling unset fields
// with the ocamllsp defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.Server.Command == "" {
		config.Server.Command = defaults.Server.Command
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if config.InterfaceExtension == "" {
		config.InterfaceExtension = defaults.InterfaceExtension
	}
}

func validateConfig(config *Config) error {
	if config.Server.Command == "" {
		return fmt.Errorf("server command must not be empty")
	}
	if !strings.HasPrefix(config.InterfaceExtension, ".") {
		return fmt.Errorf("interface_extension %q must start with a dot", config.InterfaceExtension)
	}
	return nil
}
