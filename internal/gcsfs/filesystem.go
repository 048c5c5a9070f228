package gcsfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// ErrExists is returned by Move and Copy when the target exists and
// overwrite is false.
var ErrExists = errors.New("gcsfs: target already exists")

// DefaultDeleteConcurrency bounds parallel deletes in DeleteDirectory.
const DefaultDeleteConcurrency = 8

// separatorRun matches runs of mixed slashes and backslashes.
var separatorRun = regexp.MustCompile(`[/\\]+`)

// Options configures a FileSystem.
type Options struct {
	// Prefix scopes every operation to keys below it.
	Prefix string

	// NormalizeUnicode applies NFC to resolved keys.
	NormalizeUnicode bool

	DeleteConcurrency int
	Logger            *slog.Logger
}

// FileSystem is a file-system view of one bucket under a path prefix.
// Apart from the virtual directory set, it holds no mutable state; callers
// may run operations concurrently but must not create or delete
// directories from several goroutines at once.
type FileSystem struct {
	client            *gcs.Client
	prefix            string
	normalize         bool
	deleteConcurrency int
	logger            *slog.Logger
	dirs              *VirtualDirectorySet
}

// New creates a FileSystem over client.
func New(client *gcs.Client, opts Options) *FileSystem {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := opts.DeleteConcurrency
	if concurrency <= 0 {
		concurrency = DefaultDeleteConcurrency
	}

	f := &FileSystem{
		client:            client,
		normalize:         opts.NormalizeUnicode,
		deleteConcurrency: concurrency,
		logger:            logger,
		dirs:              NewVirtualDirectorySet(),
	}
	f.prefix = f.clean(opts.Prefix)

	return f
}

// Bucket returns the bucket name.
func (f *FileSystem) Bucket() string {
	return f.client.Bucket()
}

// Prefix returns the normalized prefix all paths resolve under.
func (f *FileSystem) Prefix() string {
	return f.prefix
}

// Client returns the underlying storage client.
func (f *FileSystem) Client() *gcs.Client {
	return f.client
}

// Resolve maps a caller path to the object key it names. Separator runs and
// backslashes collapse to one "/", and leading and trailing slashes are
// dropped, so "", "/" and the prefix itself all name the root.
func (f *FileSystem) Resolve(p string) string {
	if f.prefix == "" {
		return f.clean(p)
	}

	return f.clean(f.prefix + "/" + p)
}

func (f *FileSystem) clean(p string) string {
	p = strings.Trim(separatorRun.ReplaceAllString(p, "/"), "/")

	if f.normalize {
		p = norm.NFC.String(p)
	}

	return p
}

// exists reports whether an object is stored under key.
func (f *FileSystem) exists(ctx context.Context, key string) (bool, error) {
	_, err := f.client.GetObject(ctx, key)
	if err == nil {
		return true, nil
	}

	if gcs.IsNotFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("gcsfs: checking %q: %w", key, err)
}

// dirPrefix turns a resolved directory key into its listing prefix.
func dirPrefix(key string) string {
	if key == "" {
		return ""
	}

	return key + "/"
}
