// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gcsfs. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// StorageConfig selects the bucket and how paths map onto object names.
type StorageConfig struct {
	Bucket           string `toml:"bucket" validate:"omitempty,min=3,max=222"`
	Prefix           string `toml:"prefix"`
	Endpoint         string `toml:"endpoint" validate:"omitempty,url"`
	CredentialsFile  string `toml:"credentials_file"`
	NormalizeUnicode bool   `toml:"normalize_unicode"`
}

// TransfersConfig controls upload strategy and delete parallelism.
// commit_interval must be a multiple of the 256 KiB upload chunk.
type TransfersConfig struct {
	SimpleUploadMaxSize string `toml:"simple_upload_max_size" validate:"required"`
	CommitInterval      string `toml:"commit_interval" validate:"required"`
	DeleteConcurrency   int    `toml:"delete_concurrency" validate:"min=1,max=64"`
	SessionDB           string `toml:"session_db"`
}

// LoggingConfig controls log verbosity and output format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=auto text json"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout" validate:"required"`
	DataTimeout    string `toml:"data_timeout" validate:"required"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath  string // --config
	Bucket      string // --bucket
	Prefix      string // --prefix
	Credentials string // --credentials
}

// Resolved is the effective configuration after every layer has been applied,
// with sizes and durations parsed.
type Resolved struct {
	ConfigPath string

	Bucket           string
	Prefix           string
	Endpoint         string
	CredentialsFile  string
	NormalizeUnicode bool

	SimpleUploadMaxSize int64
	CommitInterval      int64
	DeleteConcurrency   int
	SessionDB           string

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string
}
