package gcs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// CopyObject copies src to dst within the bucket with the server-side
// rewrite endpoint. Large or cross-location copies complete over several
// calls; each call carries the previous call's rewrite token until the server
// reports done or stops returning a token. There is no iteration bound and a
// failed step aborts the copy. A final response without the destination
// object is ErrCopyIncomplete.
func (c *Client) CopyObject(ctx context.Context, src, dst string) (*Object, error) {
	c.logger.Info("copying object",
		slog.String("src", src),
		slog.String("dst", dst),
	)

	basePath := c.objectPath(src) + "/rewriteTo/b/" + url.PathEscape(c.bucket) + "/o/" + url.PathEscape(dst)

	var (
		token string
		steps int
	)

	for {
		path := basePath
		if token != "" {
			path += "?rewriteToken=" + url.QueryEscape(token)
		}

		resp, err := c.Do(ctx, http.MethodPost, path, nil)
		if err != nil {
			return nil, fmt.Errorf("gcs: rewriting %q to %q: %w", src, dst, err)
		}

		var rr rewriteResponse
		if err := decodeJSON(resp, &rr, "rewrite"); err != nil {
			return nil, err
		}

		steps++

		c.logger.Debug("rewrite step",
			slog.Int("step", steps),
			slog.Bool("done", rr.Done),
			slog.Int64("bytes_rewritten", rr.TotalBytesRewritten),
			slog.Int64("object_size", rr.ObjectSize),
		)

		if rr.Done || rr.RewriteToken == "" {
			if rr.Resource == nil {
				return nil, fmt.Errorf("%w: %q to %q after %d step(s)", ErrCopyIncomplete, src, dst, steps)
			}

			obj := rr.Resource.toObject(c.logger)

			return &obj, nil
		}

		token = rr.RewriteToken
	}
}
