package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"
)

// errUploadAborted marks a writer torn down with Abort; Object reports nil.
var errUploadAborted = errors.New("gcs: upload aborted")

// ObjectWriter streams bytes into a single media upload request whose body
// is produced as Write is called. The request runs in the background from
// the first moment; Complete closes the body and waits for the response.
//
// Exactly one terminal completion (Complete or Abort) is allowed. Write,
// Flush or a second completion afterwards return ErrInvalidState; any use
// after Close returns ErrClosed. Single producer only.
type ObjectWriter struct {
	ctx    context.Context
	name   string
	pw     *io.PipeWriter
	group  *errgroup.Group
	logger *slog.Logger

	obj      *Object
	written  int64
	finished bool
	closed   bool
	err      error
}

// NewWriter starts a media upload of name and returns the writer feeding it.
// Canceling ctx aborts the in-flight request and unblocks pending writes.
func (c *Client) NewWriter(ctx context.Context, name, contentType string) *ObjectWriter {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	pr, pw := io.Pipe()
	group, gctx := errgroup.WithContext(ctx)

	w := &ObjectWriter{
		ctx:    ctx,
		name:   name,
		pw:     pw,
		group:  group,
		logger: c.logger,
	}

	c.logger.Info("starting streaming upload", slog.String("name", name))

	group.Go(func() error {
		obj, err := c.uploadMedia(gctx, name, contentType, pr)
		// Unblock the producer if the request ended before the body did.
		pr.CloseWithError(err)
		w.obj = obj

		return err
	})

	return w
}

// Write appends p to the upload body. It blocks until the request consumes
// the bytes.
func (w *ObjectWriter) Write(p []byte) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}

	n, err := w.pw.Write(p)
	w.written += int64(n)

	if err != nil {
		return n, fmt.Errorf("gcs: writing upload body: %w", err)
	}

	return n, nil
}

// Flush is a no-op: the pipe is unbuffered, so every Write has already been
// handed to the request. It reports the same state errors as Write.
func (w *ObjectWriter) Flush() error {
	return w.usable()
}

// Complete ends the body, waits for the upload response and validates it.
func (w *ObjectWriter) Complete() error {
	if err := w.usable(); err != nil {
		return err
	}

	w.finished = true

	if err := w.pw.Close(); err != nil {
		return fmt.Errorf("gcs: closing upload body: %w", err)
	}

	w.err = w.group.Wait()
	if w.err != nil {
		return fmt.Errorf("gcs: uploading %q: %w", w.name, w.err)
	}

	w.logger.Debug("streaming upload complete",
		slog.String("name", w.name),
		slog.Int64("bytes", w.written),
	)

	return nil
}

// Abort tears the writer down without validating the upload. The body is
// ended where the caller stopped writing and the response is awaited and
// discarded, so the bytes written so far may still become the object. If the
// writer's context is already canceled the body fails instead and no object
// is created; callers that must not publish a truncated body cancel first.
func (w *ObjectWriter) Abort() error {
	if err := w.usable(); err != nil {
		return err
	}

	w.finished = true
	w.err = errUploadAborted

	if err := w.ctx.Err(); err != nil {
		w.pw.CloseWithError(err)
	} else {
		w.pw.Close()
	}

	// The outcome is discarded.
	_ = w.group.Wait()

	w.logger.Info("streaming upload aborted",
		slog.String("name", w.name),
		slog.Int64("bytes", w.written),
	)

	return nil
}

// Close completes the upload if no terminal completion happened yet and
// disposes the writer.
func (w *ObjectWriter) Close() error {
	if w.closed {
		return ErrClosed
	}

	var err error
	if !w.finished {
		err = w.Complete()
	}

	w.closed = true

	return err
}

// Object returns the created object after a successful Complete.
func (w *ObjectWriter) Object() *Object {
	if !w.finished || w.err != nil {
		return nil
	}

	return w.obj
}

// Written returns the number of bytes accepted so far.
func (w *ObjectWriter) Written() int64 {
	return w.written
}

func (w *ObjectWriter) usable() error {
	if w.closed {
		return ErrClosed
	}

	if w.finished {
		return ErrInvalidState
	}

	return nil
}

// uploadMedia performs a single-request media upload reading the body from r.
func (c *Client) uploadMedia(ctx context.Context, name, contentType string, r io.Reader) (*Object, error) {
	params := url.Values{}
	params.Set("uploadType", "media")
	params.Set("name", name)

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+c.uploadPath()+"?"+params.Encode(), r)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.doChecked(req)
	if err != nil {
		return nil, err
	}

	var or objectResponse
	if err := decodeJSON(resp, &or, "upload"); err != nil {
		return nil, err
	}

	obj := or.toObject(c.logger)

	return &obj, nil
}
