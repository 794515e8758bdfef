// Package config loads and saves the CLI's local TOML preferences file.
// It is a convenience layer consulted only by cmd/decsync; the
// synchronization engine itself never reads it.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// directoryName is the subdirectory of the user's config home holding the
// configuration file.
const directoryName = "decsync"

// fileName is the name of the configuration file itself.
const fileName = "decsync.toml"

// Config is the CLI's local preferences, persisted as TOML.
type Config struct {
	// DecsyncDir is the default decsyncDir used when --decsync-dir is not
	// specified.
	DecsyncDir string `toml:"decsyncDir"`
	// DefaultApp is a preferred ownAppId. It is loaded and saved with the
	// file, but no command consults it: get, set and export take
	// --own-app-id and sync takes the app id as an argument.
	DefaultApp string `toml:"defaultApp"`
	// Color is one of "auto", "always", or "never".
	Color string `toml:"color"`
	// LogLevel is one of the names recognized by logging.NameToLevel.
	LogLevel string `toml:"logLevel"`
}

// Path returns the path to the configuration file: $XDG_CONFIG_HOME/decsync
// /decsync.toml, falling back to ~/.config/decsync/decsync.toml if
// XDG_CONFIG_HOME is unset. It does not verify that the file exists.
func Path() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, directoryName, fileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute path to home directory")
	}
	return filepath.Join(home, ".config", directoryName, fileName), nil
}

// Load reads and parses the configuration file at path. A missing file is
// not an error: it yields a zero-value Config, so first-run callers can
// treat "no config yet" and "empty config" identically.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	config := &Config{}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration file")
	}
	return config, nil
}

// Save writes config to path, creating its parent directory if necessary.
func Save(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "unable to create configuration directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "unable to open configuration file")
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return errors.Wrap(err, "unable to encode configuration file")
	}
	return nil
}
