// Package testutil provides shared environment helpers for the E2E tests,
// which run the built binary against a real bucket. It depends only on the
// standard library so that packages outside internal/ can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowedBucketsVar lists the buckets E2E tests may write to.
const AllowedBucketsVar = "GCSFS_ALLOWED_TEST_BUCKETS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// CheckBucketAllowed reports whether the bucket named by bucketEnvVar is in
// GCSFS_ALLOWED_TEST_BUCKETS. E2E tests create and delete objects, so they
// refuse to run against a bucket nobody listed.
func CheckBucketAllowed(bucketEnvVar string) error {
	allowlist := os.Getenv(AllowedBucketsVar)
	if allowlist == "" {
		return fmt.Errorf("%s not set (example: %s=my-scratch-bucket)", AllowedBucketsVar, AllowedBucketsVar)
	}

	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		return fmt.Errorf("%s not set", bucketEnvVar)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == bucket {
			return nil
		}
	}

	return fmt.Errorf("%s=%q is not in %s=%q", bucketEnvVar, bucket, AllowedBucketsVar, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
