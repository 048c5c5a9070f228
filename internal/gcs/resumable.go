package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
)

// ResumableUpload buffers written bytes in a local spill file and sends them
// to a resumable upload session in whole chunks. Commit returns a state blob
// from which a later process can continue with ResumeUpload; the session is
// finished by CompleteUpload or discarded by CancelUpload.
//
// A failed commit leaves the upload exactly as last committed. Not safe for
// concurrent use.
type ResumableUpload struct {
	client     *Client
	sessionURL string
	base       int64    // bytes durably committed to the session
	spill      *os.File // bytes written past base
	buffered   int64
	closed     bool
}

// StartUpload opens a resumable upload session for name and returns an
// upload anchored at offset zero.
func (c *Client) StartUpload(ctx context.Context, name string) (*ResumableUpload, error) {
	c.logger.Info("creating resumable upload session", slog.String("name", name))

	params := url.Values{}
	params.Set("uploadType", "resumable")
	params.Set("name", name)

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+c.uploadPath()+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Upload-Content-Type", "application/octet-stream")

	resp, err := c.doChecked(req)
	if err != nil {
		return nil, fmt.Errorf("gcs: starting resumable upload of %q: %w", name, err)
	}

	drain(resp)

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, errors.New("gcs: resumable upload response has no Location header")
	}

	return c.newResumableUpload(location, 0, nil)
}

// ResumeUpload continues the upload described by a state blob. The unflushed
// remainder is replayed into the local buffer, so subsequent writes append
// exactly where the previous process stopped.
func (c *Client) ResumeUpload(state []byte) (*ResumableUpload, error) {
	s, err := DecodeResumableState(state)
	if err != nil {
		return nil, err
	}

	c.logger.Info("resuming upload session",
		slog.Int64("offset", s.Offset),
		slog.Int("remainder", len(s.Remainder)),
	)

	return c.newResumableUpload(s.SessionURL, s.Offset, s.Remainder)
}

func (c *Client) newResumableUpload(sessionURL string, base int64, remainder []byte) (*ResumableUpload, error) {
	spill, err := os.CreateTemp("", "gcsfs-upload-*")
	if err != nil {
		return nil, fmt.Errorf("gcs: creating upload spill file: %w", err)
	}

	u := &ResumableUpload{
		client:     c,
		sessionURL: sessionURL,
		base:       base,
		spill:      spill,
	}

	if len(remainder) > 0 {
		if _, err := u.Write(remainder); err != nil {
			u.Close()
			return nil, err
		}
	}

	return u, nil
}

// Write buffers p locally.
func (u *ResumableUpload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}

	n, err := u.spill.WriteAt(p, u.buffered)
	u.buffered += int64(n)

	if err != nil {
		return n, fmt.Errorf("gcs: buffering upload data: %w", err)
	}

	return n, nil
}

// Offset returns the committed byte offset.
func (u *ResumableUpload) Offset() int64 {
	return u.base
}

// Written returns the total bytes written, committed or buffered.
func (u *ResumableUpload) Written() int64 {
	return u.base + u.buffered
}

// Commit sends every whole chunk buffered so far to the session, keeps the
// sub-chunk remainder locally and returns the new resumption state.
func (u *ResumableUpload) Commit(ctx context.Context) ([]byte, error) {
	if u.closed {
		return nil, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gcs: commit canceled: %w", err)
	}

	whole := u.buffered - u.buffered%ChunkSize
	if whole > 0 {
		if err := u.putChunks(ctx, whole); err != nil {
			return nil, err
		}

		if err := u.shiftRemainder(whole); err != nil {
			return nil, err
		}

		u.base += whole
	}

	remainder, err := u.remainder()
	if err != nil {
		return nil, err
	}

	return ResumableState{SessionURL: u.sessionURL, Offset: u.base, Remainder: remainder}.MarshalBinary()
}

// putChunks sends the first n buffered bytes with an open-ended range. The
// session answers 308 while the upload is incomplete; only 4xx/5xx fail.
func (u *ResumableUpload) putChunks(ctx context.Context, n int64) error {
	c := u.client

	c.logger.Debug("committing upload chunks",
		slog.Int64("offset", u.base),
		slog.Int64("length", n),
	)

	req, err := c.newRequest(ctx, http.MethodPut, u.sessionURL, io.NewSectionReader(u.spill, 0, n))
	if err != nil {
		return err
	}

	req.ContentLength = n
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", u.base, u.base+n-1))

	resp, err := c.send(req)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gcs: committing upload chunks: %w", c.responseError(req, resp))
	}

	drain(resp)

	c.logger.Info("upload chunks committed",
		slog.Int64("offset", u.base+n),
	)

	return nil
}

// shiftRemainder moves the bytes after the first n to the start of the spill
// file and truncates it.
func (u *ResumableUpload) shiftRemainder(n int64) error {
	rest := u.buffered - n
	tail := make([]byte, rest)

	if _, err := u.spill.ReadAt(tail, n); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("gcs: reading upload remainder: %w", err)
	}

	if err := u.spill.Truncate(0); err != nil {
		return fmt.Errorf("gcs: truncating upload buffer: %w", err)
	}

	if _, err := u.spill.WriteAt(tail, 0); err != nil {
		return fmt.Errorf("gcs: rewriting upload remainder: %w", err)
	}

	u.buffered = rest

	return nil
}

func (u *ResumableUpload) remainder() ([]byte, error) {
	buf := make([]byte, u.buffered)

	if _, err := u.spill.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("gcs: reading upload remainder: %w", err)
	}

	return buf, nil
}

// Close removes the local spill file. It does not touch the remote session.
func (u *ResumableUpload) Close() error {
	if u.closed {
		return nil
	}

	u.closed = true
	name := u.spill.Name()

	closeErr := u.spill.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("gcs: removing upload spill file: %w", err)
	}

	return closeErr
}

// CompleteUpload finishes the session described by state: the remainder is
// sent with the definite total size, which finalizes the object.
func (c *Client) CompleteUpload(ctx context.Context, state []byte) (*Object, error) {
	s, err := DecodeResumableState(state)
	if err != nil {
		return nil, err
	}

	total := s.Written()

	contentRange := fmt.Sprintf("bytes */%d", total)
	if len(s.Remainder) > 0 {
		contentRange = fmt.Sprintf("bytes %d-%d/%d", s.Offset, total-1, total)
	}

	c.logger.Info("completing resumable upload",
		slog.Int64("size", total),
	)

	req, err := c.newRequest(ctx, http.MethodPut, s.SessionURL, bytes.NewReader(s.Remainder))
	if err != nil {
		return nil, err
	}

	req.ContentLength = int64(len(s.Remainder))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", contentRange)

	resp, err := c.doChecked(req)
	if err != nil {
		return nil, fmt.Errorf("gcs: completing resumable upload: %w", err)
	}

	var or objectResponse
	if err := decodeJSON(resp, &or, "upload completion"); err != nil {
		return nil, err
	}

	obj := or.toObject(c.logger)

	return &obj, nil
}

// CancelUpload discards the session described by state. The service answers
// a canceled session with an error status, so the status is not checked;
// only a malformed state or a transport failure is reported.
func (c *Client) CancelUpload(ctx context.Context, state []byte) error {
	s, err := DecodeResumableState(state)
	if err != nil {
		return err
	}

	c.logger.Info("canceling resumable upload")

	req, err := c.newRequest(ctx, http.MethodDelete, s.SessionURL, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}

	c.logger.Debug("upload session canceled", slog.Int("status", resp.StatusCode))
	drain(resp)

	return nil
}
