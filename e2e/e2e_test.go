//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcsfs/testutil"
)

const bucketEnvVar = "GCSFS_BUCKET"

var binaryPath string

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	if err := testutil.CheckBucketAllowed(bucketEnvVar); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "gcsfs-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "gcsfs")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	// Keep session state away from the developer's data directory.
	os.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	return runCLIWithInput(t, nil, args...)
}

func runCLIWithInput(t *testing.T, stdin []byte, args ...string) (string, string) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}

	return stdout.String(), stderr.String()
}

// newTestFolder returns a unique folder name that is removed when t ends.
func newTestFolder(t *testing.T, kind string) string {
	t.Helper()

	folder := fmt.Sprintf("gcsfs-e2e-%s-%d", kind, time.Now().UnixNano())

	t.Cleanup(func() {
		_ = exec.Command(binaryPath, "rm", "-r", "/"+folder).Run()
	})

	return folder
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(p, data, 0o600))

	return p
}

// patterned returns n bytes cycling through a prime modulus so shifted or
// truncated content is detected.
func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return data
}

func TestE2E_RoundTrip(t *testing.T) {
	testFolder := newTestFolder(t, "roundtrip")
	testSubfolder := testFolder + "/subfolder"
	testFile := testFolder + "/test.txt"
	testContent := []byte("Hello from the gcsfs E2E test!\n")

	t.Run("ls_root", func(t *testing.T) {
		stdout, _ := runCLI(t, "ls", "/")
		assert.Contains(t, stdout, "NAME")
	})

	t.Run("mkdir", func(t *testing.T) {
		_, stderr := runCLI(t, "mkdir", "/"+testSubfolder)
		assert.Contains(t, stderr, "Created")
	})

	t.Run("put", func(t *testing.T) {
		_, stderr := runCLI(t, "put", writeTemp(t, testContent), "/"+testFile)
		assert.Contains(t, stderr, "Uploaded")
	})

	t.Run("ls_folder", func(t *testing.T) {
		stdout, _ := runCLI(t, "ls", "/"+testFolder)
		assert.Contains(t, stdout, "test.txt")
		assert.Contains(t, stdout, "subfolder/")
	})

	t.Run("stat", func(t *testing.T) {
		stdout, _ := runCLI(t, "stat", "/"+testFile, "--json")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "test.txt", out["name"])
		assert.InDelta(t, float64(len(testContent)), out["size"], 0)
		assert.NotEmpty(t, out["crc32c"])
	})

	t.Run("get", func(t *testing.T) {
		localPath := filepath.Join(t.TempDir(), "downloaded.txt")

		_, stderr := runCLI(t, "get", "/"+testFile, localPath)
		assert.Contains(t, stderr, "Downloaded")

		downloaded, err := os.ReadFile(localPath)
		require.NoError(t, err)
		assert.Equal(t, testContent, downloaded)
	})

	t.Run("cat_range", func(t *testing.T) {
		stdout, _ := runCLI(t, "cat", "/"+testFile, "--offset", "6", "--length", "4")
		assert.Equal(t, string(testContent[6:10]), stdout)
	})

	t.Run("cp_and_mv", func(t *testing.T) {
		runCLI(t, "cp", "/"+testFile, "/"+testSubfolder+"/copy.txt")
		runCLI(t, "mv", "/"+testSubfolder+"/copy.txt", "/"+testSubfolder+"/moved.txt")

		stdout, _ := runCLI(t, "ls", "/"+testSubfolder)
		assert.Contains(t, stdout, "moved.txt")
		assert.NotContains(t, stdout, "copy.txt")
	})

	t.Run("du", func(t *testing.T) {
		stdout, _ := runCLI(t, "du", "/"+testFolder, "--json")
		assert.JSONEq(t,
			fmt.Sprintf(`{"path":%q,"size":%d}`, "/"+testFolder, 2*len(testContent)), stdout)
	})

	t.Run("rm_file", func(t *testing.T) {
		_, stderr := runCLI(t, "rm", "/"+testFile)
		assert.Contains(t, stderr, "Deleted")
	})

	t.Run("rm_subfolder", func(t *testing.T) {
		_, stderr := runCLI(t, "rm", "-r", "/"+testSubfolder)
		assert.Contains(t, stderr, "Deleted")
	})
}

// TestE2E_LargeFile exercises the session-based upload path by lowering the
// simple upload threshold through a config file.
func TestE2E_LargeFile(t *testing.T) {
	testFolder := newTestFolder(t, "large")

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`[transfers]
simple_upload_max_size = "1MiB"
commit_interval = "1MiB"
`), 0o600))

	const fileSize = 5*1024*1024 + 123

	data := patterned(fileSize)
	remotePath := "/" + testFolder + "/large-file.bin"

	_, stderr := runCLI(t, "--config", cfgPath, "put", writeTemp(t, data), remotePath)
	assert.Contains(t, stderr, "Uploaded")

	stdout, _ := runCLI(t, "stat", remotePath)
	assert.Contains(t, stdout, fmt.Sprintf("%d bytes", fileSize))

	localPath := filepath.Join(t.TempDir(), "large-file.bin")

	_, stderr = runCLI(t, "get", remotePath, localPath)
	assert.Contains(t, stderr, "Downloaded")

	downloaded, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, data, downloaded, "downloaded file content does not match uploaded data")

	stdout, _ = runCLI(t, "sessions", "list", "--json")
	assert.NotContains(t, stdout, "large-file.bin", "finished upload left a session behind")
}

// TestE2E_StepwiseUpload drives a resumable upload across several processes
// through the state file.
func TestE2E_StepwiseUpload(t *testing.T) {
	testFolder := newTestFolder(t, "stepwise")
	remotePath := "/" + testFolder + "/stepwise.bin"
	statePath := filepath.Join(t.TempDir(), "upload.state")

	data := patterned(600 * 1024)
	parts := [][]byte{data[:100*1024], data[100*1024 : 400*1024], data[400*1024:]}

	runCLI(t, "upload", "begin", remotePath, "--state", statePath)

	for _, part := range parts {
		stdout, _ := runCLIWithInput(t, part, "upload", "write", remotePath, "--state", statePath)
		assert.Contains(t, stdout, "bytes written")
	}

	runCLI(t, "upload", "complete", remotePath, "--state", statePath)
	assert.NoFileExists(t, statePath)

	stdout, _ := runCLI(t, "cat", remotePath)
	assert.True(t, bytes.Equal(data, []byte(stdout)), "stepwise upload content mismatch")
}

func TestE2E_UnusualNames(t *testing.T) {
	testFolder := newTestFolder(t, "names")

	for _, name := range []string{"日本語テスト.txt", "my test file.txt", "percent%20sign.txt"} {
		t.Run(name, func(t *testing.T) {
			content := []byte("content of " + name + "\n")
			remotePath := "/" + testFolder + "/" + name

			runCLI(t, "put", writeTemp(t, content), remotePath)

			stdout, _ := runCLI(t, "ls", "/"+testFolder)
			assert.Contains(t, stdout, name)

			stdout, _ = runCLI(t, "cat", remotePath)
			assert.Equal(t, string(content), stdout)

			_, stderr := runCLI(t, "rm", remotePath)
			assert.True(t, strings.Contains(stderr, "Deleted"))
		})
	}
}
