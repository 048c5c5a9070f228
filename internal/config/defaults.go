package config

// Default values for configuration options, the bottom layer of the
// override chain.
const (
	defaultSimpleUploadMaxSize = "8MiB"
	defaultCommitInterval      = "8MiB"
	defaultDeleteConcurrency   = 8
	defaultLogLevel            = "info"
	defaultLogFormat           = "auto"
	defaultConnectTimeout      = "10s"
	defaultDataTimeout         = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Transfers: TransfersConfig{
			SimpleUploadMaxSize: defaultSimpleUploadMaxSize,
			CommitInterval:      defaultCommitInterval,
			DeleteConcurrency:   defaultDeleteConcurrency,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
