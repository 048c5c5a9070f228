package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	configFilePermissions = 0o600
	configDirPermissions  = 0o700
)

// ErrConfigExists is returned by WriteTemplate when the file already exists.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate lists every setting as a commented-out default.
const configTemplate = `# gcsfs configuration

[storage]
# Bucket every command operates on (or GCSFS_BUCKET / --bucket).
# bucket = ""

# Object name prefix every path is joined under.
# prefix = ""

# Service-account JSON key (or GCSFS_CREDENTIALS / --credentials).
# Leave empty to send unauthenticated requests, e.g. against an emulator.
# credentials_file = ""

# Alternative API endpoint, e.g. http://localhost:4443 for an emulator.
# endpoint = ""

# Normalize paths to Unicode NFC before building object names.
# normalize_unicode = false

[transfers]
# Files up to this size are sent in one streaming request.
# simple_upload_max_size = "8MiB"

# Bytes written between saved commits of a resumable upload (multiple of 256KiB).
# commit_interval = "8MiB"

# Parallel deletes when removing a directory recursively.
# delete_concurrency = 8

# Upload session database (default: platform data directory).
# session_db = ""

[logging]
# debug, info, warn, error
# log_level = "info"

# auto, text, json
# log_format = "auto"

[network]
# connect_timeout = "10s"
# data_timeout = "60s"
# user_agent = ""
`

// WriteTemplate creates a config file at path from the default template.
// An existing file is never overwritten.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
