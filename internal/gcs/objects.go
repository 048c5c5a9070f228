package gcs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// ListQuery selects one page of objects.
type ListQuery struct {
	Prefix     string
	Delimiter  string // "/" groups results into Prefixes; empty lists recursively
	PageToken  string
	MaxResults int
}

// ListPage is one page of an objects.list response.
type ListPage struct {
	Objects       []Object
	Prefixes      []string
	NextPageToken string
}

// GetObject fetches the metadata of the named object.
func (c *Client) GetObject(ctx context.Context, name string) (*Object, error) {
	resp, err := c.Do(ctx, http.MethodGet, c.objectPath(name), nil)
	if err != nil {
		return nil, err
	}

	var or objectResponse
	if err := decodeJSON(resp, &or, "object"); err != nil {
		return nil, err
	}

	obj := or.toObject(c.logger)

	return &obj, nil
}

// DeleteObject deletes the named object.
func (c *Client) DeleteObject(ctx context.Context, name string) error {
	c.logger.Debug("deleting object", slog.String("name", name))

	resp, err := c.Do(ctx, http.MethodDelete, c.objectPath(name), nil)
	if err != nil {
		return err
	}

	drain(resp)

	return nil
}

// MoveObject renames src to dst within the bucket using the server-side
// move endpoint.
func (c *Client) MoveObject(ctx context.Context, src, dst string) (*Object, error) {
	c.logger.Info("moving object",
		slog.String("src", src),
		slog.String("dst", dst),
	)

	path := c.objectPath(src) + "/moveTo/o/" + url.PathEscape(dst)

	resp, err := c.Do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}

	var or objectResponse
	if err := decodeJSON(resp, &or, "move"); err != nil {
		return nil, err
	}

	obj := or.toObject(c.logger)

	return &obj, nil
}

// ListObjects fetches a single page of objects matching q.
func (c *Client) ListObjects(ctx context.Context, q ListQuery) (*ListPage, error) {
	params := url.Values{}
	params.Set("prefix", q.Prefix)

	if q.Delimiter != "" {
		params.Set("delimiter", q.Delimiter)
	}

	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	if q.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(q.MaxResults))
	}

	resp, err := c.Do(ctx, http.MethodGet, c.bucketPath()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gcs: listing prefix %q: %w", q.Prefix, err)
	}

	var lr listResponse
	if err := decodeJSON(resp, &lr, "list"); err != nil {
		return nil, err
	}

	page := &ListPage{
		Prefixes:      lr.Prefixes,
		NextPageToken: lr.NextPageToken,
		Objects:       make([]Object, 0, len(lr.Items)),
	}

	for i := range lr.Items {
		page.Objects = append(page.Objects, lr.Items[i].toObject(c.logger))
	}

	return page, nil
}
