package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// OpenObject streams the content of the named object. The caller closes the
// returned reader. A missing object yields an error matching ErrNotFound.
func (c *Client) OpenObject(ctx context.Context, name string) (io.ReadCloser, error) {
	c.logger.Debug("opening object", slog.String("name", name))

	resp, err := c.Do(ctx, http.MethodGet, c.objectPath(name)+"?alt=media", nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Download streams the named object into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	body, err := c.OpenObject(ctx, name)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("gcs: streaming download content: %w", err)
	}

	return n, nil
}

// readRange fills buf with the bytes of one object generation starting at
// offset. Exactly len(buf) bytes must arrive; anything less is ErrShortRead.
func (c *Client) readRange(ctx context.Context, name string, generation, offset int64, buf []byte) error {
	path := c.objectPath(name) + "?alt=media&generation=" + strconv.FormatInt(generation, 10)

	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}

	end := offset + int64(len(buf)) - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))

	resp, err := c.doChecked(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// A server that ignores Range answers 200 with the whole object, which is
	// only usable when the range starts at zero.
	if resp.StatusCode != http.StatusPartialContent && offset != 0 {
		return fmt.Errorf("gcs: range request for %q returned status %d", name, resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrShortRead, n, len(buf), offset)
		}

		return fmt.Errorf("gcs: reading range body: %w", err)
	}

	return nil
}

// DownloadRange streams the named object from offset to the end into w.
// An offset equal to the object size writes nothing.
func (c *Client) DownloadRange(ctx context.Context, name string, w io.Writer, offset int64) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+c.objectPath(name)+"?alt=media", http.NoBody)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	resp, err := c.doChecked(req)
	if err != nil {
		if errors.Is(err, ErrRangeNotSatisfied) {
			return 0, nil
		}

		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("gcs: range download of %q returned status %d", name, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("gcs: streaming range content: %w", err)
	}

	return n, nil
}
