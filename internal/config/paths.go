package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	appName         = "gcsfs"
	configFileName  = "config.toml"
	sessionFileName = "sessions.db"
	platformDarwin  = "darwin"
)

// DefaultConfigDir returns the platform-specific directory for config files:
// $XDG_CONFIG_HOME/gcsfs (default ~/.config/gcsfs), or
// ~/Library/Application Support/gcsfs on macOS.
func DefaultConfigDir() string {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific directory for application
// data: $XDG_DATA_HOME/gcsfs (default ~/.local/share/gcsfs), or
// ~/Library/Application Support/gcsfs on macOS.
func DefaultDataDir() string {
	return userDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func userDir(xdgVar, homeRel string) string {
	if runtime.GOOS != platformDarwin {
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == platformDarwin {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	return filepath.Join(home, homeRel, appName)
}

// DefaultConfigPath returns the config file used when neither GCSFS_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultSessionDBPath returns the upload session database location.
func DefaultSessionDBPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, sessionFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return filepath.Join(home, rest)
}
