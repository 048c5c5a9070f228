package gcsfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// Transfer defaults.
const (
	DefaultSimpleUploadMaxSize = 8 << 20
	DefaultCommitInterval      = 32 * gcs.ChunkSize
)

// ErrChecksumMismatch is returned when downloaded content does not match the
// checksum the server reported.
var ErrChecksumMismatch = errors.New("gcsfs: checksum mismatch")

// TransferOptions tunes TransferManager.
type TransferOptions struct {
	// SimpleUploadMaxSize is the largest file sent as one streaming request.
	SimpleUploadMaxSize int64
	// CommitInterval is how many bytes are written between commits of a
	// resumable upload. Rounded down to a chunk multiple.
	CommitInterval int64
}

// DownloadOpts configures a single download.
type DownloadOpts struct {
	RemoteCRC32C string    // expected checksum; empty skips verification
	RemoteMtime  time.Time // applied to the local file when set
	RemoteSize   int64     // expected size; 0 skips the check
}

// DownloadResult reports a finished download.
type DownloadResult struct {
	Size     int64
	CRC32C   string
	Verified bool
	Resumed  bool
}

// UploadResult reports a finished upload.
type UploadResult struct {
	File        *FileEntry
	LocalCRC32C string
	Size        int64
	Resumed     bool
}

// TransferManager moves whole files between the local disk and the bucket.
// Downloads land in a .partial file that is resumed with a range request
// and renamed into place once complete. Uploads above SimpleUploadMaxSize
// use a resumable session whose state is committed periodically and saved
// in the SessionStore.
type TransferManager struct {
	downloads           Downloader
	uploads             Uploader
	sessionStore        *SessionStore // nil disables cross-process upload resume
	simpleUploadMaxSize int64
	commitInterval      int64
	logger              *slog.Logger
	hashFunc            func(string) (string, error)
}

// NewTransferManager creates a TransferManager. store may be nil.
func NewTransferManager(
	dl Downloader, ul Uploader, store *SessionStore, opts TransferOptions, logger *slog.Logger,
) *TransferManager {
	if logger == nil {
		logger = slog.Default()
	}

	simpleMax := opts.SimpleUploadMaxSize
	if simpleMax <= 0 {
		simpleMax = DefaultSimpleUploadMaxSize
	}

	interval := opts.CommitInterval - opts.CommitInterval%gcs.ChunkSize
	if interval <= 0 {
		interval = DefaultCommitInterval
	}

	return &TransferManager{
		downloads:           dl,
		uploads:             ul,
		sessionStore:        store,
		simpleUploadMaxSize: simpleMax,
		commitInterval:      interval,
		logger:              logger,
		hashFunc:            FileCRC32C,
	}
}

// DownloadToFile downloads the file at remotePath to targetPath through
// targetPath.partial. An existing partial file is continued when the
// downloader supports ranges. On a checksum mismatch the partial file is
// removed and ErrChecksumMismatch returned.
func (tm *TransferManager) DownloadToFile(
	ctx context.Context, remotePath, targetPath string, opts DownloadOpts,
) (*DownloadResult, error) {
	if targetPath == "" {
		return nil, errors.New("download: target path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("creating parent dir for %s: %w", targetPath, err)
	}

	partialPath := targetPath + ".partial"

	size, resumed, err := tm.downloadToPartial(ctx, remotePath, partialPath)
	if err != nil {
		return nil, err
	}

	if opts.RemoteSize > 0 && size != opts.RemoteSize {
		tm.logger.Warn("download size mismatch",
			slog.String("target", targetPath),
			slog.Int64("local_size", size),
			slog.Int64("remote_size", opts.RemoteSize),
		)
	}

	localSum, err := tm.hashFunc(partialPath)
	if err != nil {
		return nil, err
	}

	verified := false

	if opts.RemoteCRC32C != "" {
		if localSum != opts.RemoteCRC32C {
			os.Remove(partialPath)

			return nil, fmt.Errorf("%w: %s has %s, server reported %s",
				ErrChecksumMismatch, remotePath, localSum, opts.RemoteCRC32C)
		}

		verified = true
	}

	if !opts.RemoteMtime.IsZero() {
		if err := os.Chtimes(partialPath, opts.RemoteMtime, opts.RemoteMtime); err != nil {
			tm.logger.Warn("failed to set mtime on partial",
				slog.String("target", targetPath),
				slog.String("error", err.Error()),
			)
		}
	}

	// On failure the .partial file stays so the next attempt can resume.
	if err := os.Rename(partialPath, targetPath); err != nil {
		return nil, fmt.Errorf("renaming partial to %s: %w", targetPath, err)
	}

	tm.logger.Debug("download complete",
		slog.String("target", targetPath),
		slog.Int64("size", size),
		slog.Bool("resumed", resumed),
	)

	return &DownloadResult{Size: size, CRC32C: localSum, Verified: verified, Resumed: resumed}, nil
}

// downloadToPartial fills partialPath and returns its final size. The file
// is opened before stat so a concurrent removal cannot slip in between.
func (tm *TransferManager) downloadToPartial(
	ctx context.Context, remotePath, partialPath string,
) (int64, bool, error) {
	if rd, ok := tm.downloads.(RangeDownloader); ok {
		f, err := os.OpenFile(partialPath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:mnd // owner-only
		if err == nil {
			info, statErr := f.Stat()
			if statErr == nil && info.Size() > 0 {
				n, err := tm.resumeDownload(ctx, rd, f, remotePath, partialPath, info.Size())
				if err == nil {
					return info.Size() + n, true, nil
				}

				if ctx.Err() != nil {
					return 0, false, err
				}

				tm.logger.Warn("range download failed, falling back to fresh download",
					slog.String("path", partialPath), slog.String("error", err.Error()))
			} else {
				f.Close()
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			tm.logger.Warn("cannot open partial file for resume, starting fresh",
				slog.String("path", partialPath), slog.String("error", err.Error()))
		}
	}

	n, err := tm.freshDownload(ctx, remotePath, partialPath)

	return n, false, err
}

func (tm *TransferManager) resumeDownload(
	ctx context.Context, rd RangeDownloader, f *os.File, remotePath, partialPath string, offset int64,
) (int64, error) {
	tm.logger.Debug("resuming download from partial file",
		slog.String("path", partialPath),
		slog.Int64("existing_bytes", offset),
	)

	n, err := rd.DownloadRange(ctx, remotePath, f, offset)

	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing partial file %s: %w", partialPath, closeErr)
	}

	return n, err
}

// freshDownload truncates partialPath and downloads the whole file into it.
// The partial file survives cancellation so a later call can resume.
func (tm *TransferManager) freshDownload(ctx context.Context, remotePath, partialPath string) (int64, error) {
	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:mnd // owner-only file perms
	if err != nil {
		return 0, fmt.Errorf("creating partial file %s: %w", partialPath, err)
	}

	n, err := tm.downloads.Download(ctx, remotePath, f)
	if err != nil {
		f.Close()

		if ctx.Err() == nil {
			os.Remove(partialPath)
		}

		return 0, fmt.Errorf("downloading %s: %w", remotePath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(partialPath)
		return 0, fmt.Errorf("closing partial file %s: %w", partialPath, err)
	}

	return n, nil
}

// UploadFile uploads the local file to remotePath. Large files go through a
// resumable session when a SessionStore is configured and the uploader
// supports sessions; an earlier session for the same unchanged file is
// continued where its last commit left off.
func (tm *TransferManager) UploadFile(ctx context.Context, localPath, remotePath string) (*UploadResult, error) {
	if localPath == "" || remotePath == "" {
		return nil, errors.New("upload: local and remote paths must not be empty")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	localSum, err := tm.hashFunc(localPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	size := info.Size()
	ru, hasSessions := tm.uploads.(ResumableUploader)

	var (
		entry   *FileEntry
		resumed bool
	)

	if size > tm.simpleUploadMaxSize && tm.sessionStore != nil && hasSessions {
		entry, resumed, err = tm.sessionUpload(ctx, ru, f, localPath, remotePath, localSum, size)
	} else {
		entry, err = tm.streamUpload(ctx, f, remotePath)
	}

	if err != nil {
		return nil, err
	}

	if entry.CRC32C != "" && entry.CRC32C != localSum {
		tm.logger.Warn("upload checksum mismatch",
			slog.String("path", localPath),
			slog.String("local_crc32c", localSum),
			slog.String("remote_crc32c", entry.CRC32C),
		)
	}

	tm.logger.Debug("upload complete",
		slog.String("path", localPath),
		slog.String("remote", remotePath),
		slog.Int64("size", size),
	)

	return &UploadResult{File: entry, LocalCRC32C: localSum, Size: size, Resumed: resumed}, nil
}

func (tm *TransferManager) streamUpload(ctx context.Context, r io.Reader, remotePath string) (*FileEntry, error) {
	// Canceled before Abort so a local read failure never publishes a
	// truncated object.
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := tm.uploads.CreateFile(uploadCtx, remotePath, "")

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Abort()
		w.Close()

		return nil, fmt.Errorf("uploading %s: %w", remotePath, err)
	}

	if err := w.Complete(); err != nil {
		w.Close()
		return nil, fmt.Errorf("uploading %s: %w", remotePath, err)
	}

	obj := w.Object()
	w.Close()

	return newFileEntry(path.Base(remotePath), obj), nil
}

// sessionUpload runs a resumable upload, saving the state after every
// commit. On failure the saved record is kept for the next attempt unless
// the remote session is gone.
func (tm *TransferManager) sessionUpload(
	ctx context.Context, ru ResumableUploader, f *os.File,
	localPath, remotePath, fingerprint string, size int64,
) (*FileEntry, bool, error) {
	rec := &SessionRecord{
		Bucket:      ru.Bucket(),
		ObjectKey:   ru.Resolve(remotePath),
		LocalPath:   localPath,
		Fingerprint: fingerprint,
		FileSize:    size,
	}

	up, resumed, err := tm.openSession(ctx, ru, rec, remotePath)
	if err != nil {
		return nil, false, err
	}
	defer up.Close()

	if _, err := f.Seek(up.Written(), io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("seeking %s: %w", localPath, err)
	}

	for {
		n, copyErr := io.CopyN(up, f, tm.commitInterval)
		if copyErr != nil && !errors.Is(copyErr, io.EOF) {
			return nil, false, fmt.Errorf("reading %s: %w", localPath, copyErr)
		}

		if n > 0 {
			if err := tm.commit(ctx, up, rec); err != nil {
				return nil, false, err
			}
		}

		if copyErr != nil {
			break
		}
	}

	entry, err := ru.CompleteResumableUpload(ctx, remotePath, rec.State)
	if err != nil {
		if sessionGone(err) {
			tm.deleteSession(ctx, rec)
		}

		return nil, false, err
	}

	tm.deleteSession(ctx, rec)

	return entry, resumed, nil
}

// openSession continues the saved session for rec when it matches the local
// file, and otherwise starts and saves a new one.
func (tm *TransferManager) openSession(
	ctx context.Context, ru ResumableUploader, rec *SessionRecord, remotePath string,
) (*gcs.ResumableUpload, bool, error) {
	saved, err := tm.sessionStore.Load(ctx, rec.Bucket, rec.ObjectKey, rec.LocalPath)
	if err != nil {
		tm.logger.Warn("failed to load upload session",
			slog.String("path", rec.LocalPath),
			slog.String("error", err.Error()),
		)
	}

	if saved != nil && saved.Fingerprint == rec.Fingerprint && saved.FileSize == rec.FileSize {
		up, err := ru.ContinueResumableUpload(remotePath, saved.State)
		if err == nil && up.Written() <= rec.FileSize {
			tm.logger.Info("continuing saved upload session",
				slog.String("path", rec.LocalPath),
				slog.Int64("offset", up.Written()),
			)

			rec.ID, rec.CreatedAt, rec.State = saved.ID, saved.CreatedAt, saved.State

			return up, true, nil
		}

		if up != nil {
			up.Close()
		}

		tm.logger.Warn("discarding unusable upload session", slog.String("path", rec.LocalPath))
	}

	if saved != nil {
		tm.deleteSession(ctx, saved)
	}

	up, err := ru.BeginResumableUpload(ctx, remotePath)
	if err != nil {
		return nil, false, err
	}

	if err := tm.commit(ctx, up, rec); err != nil {
		up.Close()
		return nil, false, err
	}

	return up, false, nil
}

// commit flushes whole chunks and saves the resulting state. A failure to
// save is logged only; the upload itself can still finish.
func (tm *TransferManager) commit(ctx context.Context, up *gcs.ResumableUpload, rec *SessionRecord) error {
	state, err := up.Commit(ctx)
	if err != nil {
		if sessionGone(err) {
			tm.deleteSession(ctx, rec)
		}

		return fmt.Errorf("committing upload of %s: %w", rec.LocalPath, err)
	}

	rec.State = state

	if err := tm.sessionStore.Save(ctx, rec); err != nil {
		tm.logger.Warn("failed to save upload session, resume after restart will not work for this file",
			slog.String("path", rec.LocalPath),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func (tm *TransferManager) deleteSession(ctx context.Context, rec *SessionRecord) {
	if err := tm.sessionStore.Delete(ctx, rec.Bucket, rec.ObjectKey, rec.LocalPath); err != nil {
		tm.logger.Warn("failed to delete upload session",
			slog.String("path", rec.LocalPath),
			slog.String("error", err.Error()),
		)
	}
}

// sessionGone reports whether the server no longer knows the upload
// session, so retrying with the saved state is pointless.
func sessionGone(err error) bool {
	var se *gcs.StorageError
	if !errors.As(err, &se) {
		return false
	}

	return se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone
}
