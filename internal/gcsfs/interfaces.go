package gcsfs

import (
	"context"
	"io"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// Downloader streams a remote file by path. Satisfied by *FileSystem.
type Downloader interface {
	Download(ctx context.Context, p string, w io.Writer) (int64, error)
}

// RangeDownloader continues a download from a byte offset. Type-asserted on
// the Downloader to resume .partial files.
type RangeDownloader interface {
	DownloadRange(ctx context.Context, p string, w io.Writer, offset int64) (int64, error)
}

// Uploader starts streaming uploads. Satisfied by *FileSystem.
type Uploader interface {
	CreateFile(ctx context.Context, p, contentType string) *gcs.ObjectWriter
}

// ResumableUploader provides session-based uploads. Type-asserted on the
// Uploader; together with a SessionStore it lets large uploads continue
// after a restart. Bucket and Resolve identify the target object in the
// session store.
type ResumableUploader interface {
	Bucket() string
	Resolve(p string) string
	BeginResumableUpload(ctx context.Context, p string) (*gcs.ResumableUpload, error)
	ContinueResumableUpload(p string, state []byte) (*gcs.ResumableUpload, error)
	CompleteResumableUpload(ctx context.Context, p string, state []byte) (*FileEntry, error)
	CancelResumableUpload(ctx context.Context, p string, state []byte) error
}
