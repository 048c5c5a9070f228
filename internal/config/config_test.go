package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes content to a config file in a temp dir.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[storage]
bucket = "photos-archive"
prefix = "users/alice"
endpoint = "http://localhost:4443"
credentials_file = "/etc/gcsfs/key.json"
normalize_unicode = true

[transfers]
simple_upload_max_size = "16MiB"
commit_interval = "1MiB"
delete_concurrency = 16

[logging]
log_level = "debug"
log_format = "json"

[network]
connect_timeout = "5s"
data_timeout = "2m"
user_agent = "backup-job"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "photos-archive", cfg.Storage.Bucket)
	assert.Equal(t, "users/alice", cfg.Storage.Prefix)
	assert.True(t, cfg.Storage.NormalizeUnicode)
	assert.Equal(t, 16, cfg.Transfers.DeleteConcurrency)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, "backup-job", cfg.Network.UserAgent)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[storage]\nbucket = \"b-1\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultCommitInterval, cfg.Transfers.CommitInterval)
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoad_SyntaxError(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[storage\nbucket="))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Bucket = "x"
	cfg.Storage.Endpoint = "not a url"
	cfg.Transfers.CommitInterval = "100KiB"
	cfg.Transfers.DeleteConcurrency = 0
	cfg.Logging.LogLevel = "loud"
	cfg.Network.DataTimeout = "1s"

	err := Validate(cfg)
	require.Error(t, err)

	for _, want := range []string{
		"storage.bucket", "storage.endpoint", "commit_interval",
		"transfers.delete_concurrency", "logging.log_level", "data_timeout",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		notWant string
	}{
		{
			name:    "typo in section",
			content: "[transfers]\ncommit_intreval = \"1MiB\"\n",
			want:    []string{"unknown config key", "commit_interval"},
		},
		{
			name:    "unknown section suggests",
			content: "[storag]\nbucket = \"b-1\"\n",
			want:    []string{"unknown config section", `"storage"`},
		},
		{
			name:    "key outside its section",
			content: "bucket = \"b-1\"\n",
			want:    []string{"belongs in the [storage] section"},
		},
		{
			name:    "no suggestion",
			content: "[logging]\ncompletely_unrelated_key = true\n",
			want:    []string{"unknown config key"},
			notWant: "did you mean",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTestConfig(t, tt.content))
			require.Error(t, err)

			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}

			if tt.notWant != "" {
				assert.NotContains(t, err.Error(), tt.notWant)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abd", 1},
		{"prefx", "prefix", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[storage]
bucket = "from-file"
prefix = "file-prefix"
credentials_file = "/file/key.json"
`)

	t.Run("file only", func(t *testing.T) {
		r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "from-file", r.Bucket)
		assert.Equal(t, "file-prefix", r.Prefix)
		assert.Equal(t, path, r.ConfigPath)
	})

	t.Run("env beats file", func(t *testing.T) {
		r, err := Resolve(EnvOverrides{ConfigPath: path, Bucket: "from-env", Endpoint: "http://127.0.0.1:9000"},
			CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "from-env", r.Bucket)
		assert.Equal(t, "http://127.0.0.1:9000", r.Endpoint)
	})

	t.Run("cli beats env", func(t *testing.T) {
		r, err := Resolve(
			EnvOverrides{ConfigPath: "/nonexistent/ignored.toml", Bucket: "from-env", Credentials: "/env/key.json"},
			CLIOverrides{ConfigPath: path, Bucket: "from-cli", Prefix: "cli-prefix"},
		)
		require.NoError(t, err)
		assert.Equal(t, "from-cli", r.Bucket)
		assert.Equal(t, "cli-prefix", r.Prefix)
		assert.Equal(t, "/env/key.json", r.CredentialsFile)
	})
}

func TestResolve_ParsesValues(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	path := writeTestConfig(t, `
[transfers]
simple_upload_max_size = "1MB"
commit_interval = "512KiB"

[network]
data_timeout = "90s"
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), r.SimpleUploadMaxSize)
	assert.Equal(t, int64(512*1024), r.CommitInterval)
	assert.Equal(t, 90*time.Second, r.DataTimeout)
	assert.Equal(t, 10*time.Second, r.ConnectTimeout)
	assert.NotEmpty(t, r.SessionDB)

	require.Error(t, r.RequireBucket())

	r.Bucket = "set"
	require.NoError(t, r.RequireBucket())
}

func TestResolve_InvalidOverride(t *testing.T) {
	_, err := Resolve(EnvOverrides{}, CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		Bucket:     "ab",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
}

func TestRenderEffective(t *testing.T) {
	r, err := Resolve(EnvOverrides{}, CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		Bucket:     "render-me",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, `bucket            = "render-me"`)
	assert.Contains(t, out, `commit_interval        = "8.0 MiB"`)
	assert.Contains(t, out, `connect_timeout = "10s"`)
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteTemplate(path))

	cfg, err := Load(path)
	require.NoError(t, err, "template must parse cleanly")
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())

	require.ErrorIs(t, WriteTemplate(path), ErrConfigExists)
}
