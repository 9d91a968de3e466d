// Package config loads and saves credentials, preferences and settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	appName = "multipost"

	envConfigDir = "MULTIPOST_CONFIG_DIR"

	credentialsFile = "credentials.json"
	preferencesFile = "preferences.json"
	settingsFile    = "settings.yaml"
)

// Paths locates the persisted files.
type Paths struct {
	Dir string
}

// DefaultPaths resolves $MULTIPOST_CONFIG_DIR, then $XDG_CONFIG_HOME/multipost,
// then ~/.config/multipost.
func DefaultPaths() (Paths, error) {
	if dir := os.Getenv(envConfigDir); dir != "" {
		return Paths{Dir: dir}, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return Paths{Dir: filepath.Join(xdg, appName)}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Paths{Dir: filepath.Join(home, ".config", appName)}, nil
}

func (p Paths) Credentials() string { return filepath.Join(p.Dir, credentialsFile) }
func (p Paths) Preferences() string { return filepath.Join(p.Dir, preferencesFile) }
func (p Paths) Settings() string    { return filepath.Join(p.Dir, settingsFile) }

// LoadDotEnv loads the first-listed files with the highest priority. Missing
// files are ignored and variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// writeFile replaces path atomically with 0600 permissions.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
