package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain
// defaults -> config file -> environment -> CLI flags, returning the
// effective settings.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyOverride(&cfg.Storage.Bucket, env.Bucket, cli.Bucket)
	applyOverride(&cfg.Storage.Prefix, env.Prefix, cli.Prefix)
	applyOverride(&cfg.Storage.CredentialsFile, env.Credentials, cli.Credentials)
	applyOverride(&cfg.Storage.Endpoint, env.Endpoint, "")

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath)
}

// applyOverride sets *dst to the highest-precedence non-empty value.
func applyOverride(dst *string, envVal, cliVal string) {
	if envVal != "" {
		*dst = envVal
	}

	if cliVal != "" {
		*dst = cliVal
	}
}

// resolve converts a validated Config into parsed effective values.
func resolve(cfg *Config, cfgPath string) (*Resolved, error) {
	simpleMax, err := ParseSize(cfg.Transfers.SimpleUploadMaxSize)
	if err != nil {
		return nil, fmt.Errorf("simple_upload_max_size: %w", err)
	}

	commit, err := ParseSize(cfg.Transfers.CommitInterval)
	if err != nil {
		return nil, fmt.Errorf("commit_interval: %w", err)
	}

	connect, err := time.ParseDuration(cfg.Network.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	data, err := time.ParseDuration(cfg.Network.DataTimeout)
	if err != nil {
		return nil, fmt.Errorf("data_timeout: %w", err)
	}

	sessionDB := expandTilde(cfg.Transfers.SessionDB)
	if sessionDB == "" {
		sessionDB = DefaultSessionDBPath()
	}

	return &Resolved{
		ConfigPath:          cfgPath,
		Bucket:              cfg.Storage.Bucket,
		Prefix:              cfg.Storage.Prefix,
		Endpoint:            cfg.Storage.Endpoint,
		CredentialsFile:     expandTilde(cfg.Storage.CredentialsFile),
		NormalizeUnicode:    cfg.Storage.NormalizeUnicode,
		SimpleUploadMaxSize: simpleMax,
		CommitInterval:      commit,
		DeleteConcurrency:   cfg.Transfers.DeleteConcurrency,
		SessionDB:           sessionDB,
		LogLevel:            cfg.Logging.LogLevel,
		LogFormat:           cfg.Logging.LogFormat,
		ConnectTimeout:      connect,
		DataTimeout:         data,
		UserAgent:           cfg.Network.UserAgent,
	}, nil
}

// RequireBucket fails when no bucket was configured by any layer.
func (r *Resolved) RequireBucket() error {
	if r.Bucket == "" {
		return fmt.Errorf("no bucket configured: set [storage] bucket, %s or --bucket", EnvBucket)
	}

	return nil
}
