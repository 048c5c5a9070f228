package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "GCSFS_CONFIG"
	EnvBucket      = "GCSFS_BUCKET"
	EnvPrefix      = "GCSFS_PREFIX"
	EnvCredentials = "GCSFS_CREDENTIALS"
	EnvEndpoint    = "GCSFS_ENDPOINT"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string
	Bucket      string
	Prefix      string
	Credentials string
	Endpoint    string
}

// ReadEnvOverrides reads the GCSFS_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Bucket:      os.Getenv(EnvBucket),
		Prefix:      os.Getenv(EnvPrefix),
		Credentials: os.Getenv(EnvCredentials),
		Endpoint:    os.Getenv(EnvEndpoint),
	}
}
