// ABOUTME: Loads CLUSTERDESIGNER_* settings and friends from .env files before config is resolved.
// ABOUTME: Variables already present in the environment always win over file values.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// parseDotEnv reads KEY=VALUE lines. Blank lines and # comments are
// skipped, an "export " prefix is allowed, and matching quotes are stripped.
func parseDotEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		// Values may contain '='.
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key != "" {
			vars[key] = value
		}
	}
	return vars, scanner.Err()
}

// loadDotEnv applies a .env file without clobbering and returns how many
// variables it set. A missing file is not an error.
func loadDotEnv(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	vars, err := parseDotEnv(f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	set := 0
	for key, value := range vars {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return set, fmt.Errorf("set %s: %w", key, err)
		}
		set++
	}
	return set, nil
}

// dotEnvCandidates lists .env files from the working directory up to the
// filesystem root, then the one next to config.toml.
func dotEnvCandidates() []string {
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		for dir := wd; ; dir = filepath.Dir(dir) {
			add(filepath.Join(dir, ".env"))
			if filepath.Dir(dir) == dir {
				break
			}
		}
	}
	if cfg, err := defaultConfigPath(); err == nil {
		add(filepath.Join(filepath.Dir(cfg), ".env"))
	}
	return paths
}

// loadDotEnvAuto applies every candidate .env file; nearer files win
// because they are applied first.
func loadDotEnvAuto() error {
	for _, p := range dotEnvCandidates() {
		if _, err := loadDotEnv(p); err != nil {
			return err
		}
	}
	return nil
}
