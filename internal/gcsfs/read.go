package gcsfs

import (
	"context"
	"fmt"
	"io"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// AccessHint tells OpenRead how the caller will consume the file.
type AccessHint int

const (
	// Sequential streams the object in a single request.
	Sequential AccessHint = iota
	// RandomAccess returns a seekable reader that issues one ranged request
	// per read, pinned to the generation current at open time.
	RandomAccess
)

func (h AccessHint) String() string {
	switch h {
	case Sequential:
		return "sequential"
	case RandomAccess:
		return "random-access"
	default:
		return fmt.Sprintf("AccessHint(%d)", int(h))
	}
}

// OpenRead opens the file at p for reading, or returns nil, nil when it does
// not exist. With RandomAccess the reader is a *gcs.RangeReader and also
// implements io.Seeker and io.ReaderAt.
func (f *FileSystem) OpenRead(ctx context.Context, p string, hint AccessHint) (io.ReadCloser, error) {
	key := f.Resolve(p)

	if hint == RandomAccess {
		obj, err := f.client.GetObject(ctx, key)
		if err != nil {
			if gcs.IsNotFound(err) {
				return nil, nil
			}

			return nil, fmt.Errorf("gcsfs: opening %q: %w", p, err)
		}

		return f.client.NewRangeReader(ctx, obj), nil
	}

	body, err := f.client.OpenObject(ctx, key)
	if err != nil {
		if gcs.IsNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gcsfs: opening %q: %w", p, err)
	}

	return body, nil
}

// Download streams the whole file at p into w.
func (f *FileSystem) Download(ctx context.Context, p string, w io.Writer) (int64, error) {
	return f.client.Download(ctx, f.Resolve(p), w)
}

// DownloadRange streams the file at p from offset to its end into w.
func (f *FileSystem) DownloadRange(ctx context.Context, p string, w io.Writer, offset int64) (int64, error) {
	return f.client.DownloadRange(ctx, f.Resolve(p), w, offset)
}
