// ABOUTME: XDG-based data and config directory resolution for the clusterdesigner CLI.
// ABOUTME: Saved designs and exports live under the data dir; config.toml lives under the config dir.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "clusterdesigner"

// xdgDir returns $envVar/clusterdesigner, or ~/<fallback...>/clusterdesigner
// when the variable is unset.
func xdgDir(envVar string, fallback ...string) (string, error) {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appDir)...), nil
}

// defaultDataDir returns $XDG_DATA_HOME/clusterdesigner or
// ~/.local/share/clusterdesigner.
func defaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// defaultConfigPath returns $XDG_CONFIG_HOME/clusterdesigner/config.toml or
// ~/.config/clusterdesigner/config.toml.
func defaultConfigPath() (string, error) {
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
