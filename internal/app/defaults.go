package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FLOWSTATE_CONFIG_PATH: config file location (default: ~/.config/flowstate.toml)
//   - FLOWSTATE_HOME: base directory for flowstate (default: ~/.local/share/flowstate)
//
// The synchronized data root and the log directory are siblings under the base
// directory, so logs never end up in the working tree.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"data_root":   filepath.Join(baseDir, "data"),
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking FLOWSTATE_CONFIG_PATH first,
// then falling back to the default ~/.config/flowstate.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("FLOWSTATE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "flowstate.toml"), nil
}

// getBaseDir returns the base directory, checking FLOWSTATE_HOME first,
// then falling back to the XDG default ~/.local/share/flowstate.
func getBaseDir() (string, error) {
	if path := os.Getenv("FLOWSTATE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "flowstate"), nil
}
