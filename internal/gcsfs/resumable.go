package gcsfs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// BeginResumableUpload opens a new upload session for the file at p. Commit
// on the returned upload yields the state blob the other resumable calls
// take.
func (f *FileSystem) BeginResumableUpload(ctx context.Context, p string) (*gcs.ResumableUpload, error) {
	up, err := f.client.StartUpload(ctx, f.Resolve(p))
	if err != nil {
		return nil, fmt.Errorf("gcsfs: beginning upload of %q: %w", p, err)
	}

	return up, nil
}

// ContinueResumableUpload reopens an upload from a state blob returned by a
// previous Commit, possibly in another process. The session URL inside the
// state identifies the object; p is used for logging only.
func (f *FileSystem) ContinueResumableUpload(p string, state []byte) (*gcs.ResumableUpload, error) {
	f.logger.Debug("continuing resumable upload", slog.String("path", p))

	up, err := f.client.ResumeUpload(state)
	if err != nil {
		return nil, fmt.Errorf("gcsfs: continuing upload of %q: %w", p, err)
	}

	return up, nil
}

// CompleteResumableUpload sends the buffered remainder with the final size
// and returns the stored file.
func (f *FileSystem) CompleteResumableUpload(ctx context.Context, p string, state []byte) (*FileEntry, error) {
	obj, err := f.client.CompleteUpload(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("gcsfs: completing upload of %q: %w", p, err)
	}

	return newFileEntry(baseName(f.Resolve(p)), obj), nil
}

// CancelResumableUpload discards the session. The server's answer is
// ignored; only an undecodable state or a transport failure is returned.
func (f *FileSystem) CancelResumableUpload(ctx context.Context, p string, state []byte) error {
	if err := f.client.CancelUpload(ctx, state); err != nil {
		return fmt.Errorf("gcsfs: canceling upload of %q: %w", p, err)
	}

	return nil
}
