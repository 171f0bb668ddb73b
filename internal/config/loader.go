package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

const (
	userConfigDir = ".config/mooagent"

	// ConfigFileName is the name of the main configuration file.
	ConfigFileName = "config.yaml"
)

// DefaultConfigDir returns ~/.config/mooagent.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// FilePath returns the config.yaml path inside configDir.
func FilePath(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// LoadConfig loads config.yaml from configDir. A missing file yields the
// default configuration.
func LoadConfig(configDir string) (*Config, error) {
	configFilePath := FilePath(configDir)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return &config, nil
		}
		return nil, &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ConfigurationError{FilePath: configFilePath, ErrorType: "parse", Err: err}
	}
	if config.Servers == nil {
		config.Servers = map[string]*Server{}
	}
	config.fillNames()

	if errs := config.Validate(); errs.HasErrors() {
		return nil, &ConfigurationError{FilePath: configFilePath, ErrorType: "validation", Err: errs}
	}

	logging.Debug("ConfigLoader", "Loaded configuration from %s (%d servers)", configFilePath, len(config.Servers))
	return &config, nil
}

// SaveConfig writes config to configDir/config.yaml atomically with 0600
// permissions, since the file may hold client secrets and bearer tokens.
func SaveConfig(configDir string, config *Config) error {
	configFilePath := FilePath(configDir)

	data, err := yaml.Marshal(config)
	if err != nil {
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "parse", Err: err}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}

	tmp, err := os.CreateTemp(configDir, ".config-*.yaml")
	if err != nil {
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}
	if err := os.Rename(tmpName, configFilePath); err != nil {
		return &ConfigurationError{FilePath: configFilePath, ErrorType: "io", Err: err}
	}

	logging.Debug("ConfigLoader", "Saved configuration to %s", configFilePath)
	return nil
}
