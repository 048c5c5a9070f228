package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// DefaultBaseURL is the public Cloud Storage endpoint.
const DefaultBaseURL = "https://storage.googleapis.com"

const (
	defaultUserAgent = "gcsfs/0.1"
	requestIDHeader  = "X-Request-Id"
)

// RequestAuthenticator attaches credentials to an outgoing request.
// *Authenticator and StaticTokenSource implement it.
type RequestAuthenticator interface {
	Authenticate(req *http.Request) error
}

// Client is an HTTP client for a single Cloud Storage bucket. Every request,
// including resumable session and ranged media requests, is authenticated
// through the same RequestAuthenticator.
type Client struct {
	baseURL    string
	bucket     string
	httpClient *http.Client
	auth       RequestAuthenticator
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a Cloud Storage client bound to bucket.
// baseURL is typically DefaultBaseURL; an empty userAgent uses the default.
func NewClient(
	baseURL, bucket string, httpClient *http.Client, auth RequestAuthenticator, logger *slog.Logger, userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		bucket:     bucket,
		httpClient: httpClient,
		auth:       auth,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// Bucket returns the bucket this client operates on.
func (c *Client) Bucket() string {
	return c.bucket
}

// Do executes an authenticated request against the JSON API.
// The path is appended to the client's base URL. Any non-2xx status is
// returned as a *StorageError. The caller closes the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doChecked(req)
}

// newRequest builds an authenticated request carrying the user agent and a
// fresh client request ID.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating request: %w", err)
	}

	if err := c.auth.Authenticate(req); err != nil {
		return nil, fmt.Errorf("gcs: obtaining token: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, uuid.NewString())

	return req, nil
}

// send performs the round trip without inspecting the status code.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("gcs: request canceled: %w", ctxErr)
		}

		c.logger.Error("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("request_id", req.Header.Get(requestIDHeader)),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("gcs: %s %s: %w", req.Method, req.URL.Path, err)
	}

	return resp, nil
}

// doChecked sends req and converts any non-2xx response into a *StorageError.
func (c *Client) doChecked(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	return nil, c.responseError(req, resp)
}

// responseError reads and closes the body of a failed response and wraps it
// with the status sentinel.
func (c *Client) responseError(req *http.Request, resp *http.Response) error {
	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	reqID := req.Header.Get(requestIDHeader)

	if resp.StatusCode != http.StatusNotFound {
		c.logger.Warn("request returned error status",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", reqID),
		)
	}

	return &StorageError{
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// decodeJSON decodes a successful response body into v and closes it.
func decodeJSON(resp *http.Response, v any, what string) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("gcs: decoding %s response: %w", what, err)
	}

	return nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
	resp.Body.Close()
}

// bucketPath returns the JSON API path of the bucket's object collection.
func (c *Client) bucketPath() string {
	return "/storage/v1/b/" + url.PathEscape(c.bucket) + "/o"
}

// objectPath returns the JSON API path of a single object. The object name is
// escaped as one path segment, so "/" inside names becomes %2F.
func (c *Client) objectPath(name string) string {
	return c.bucketPath() + "/" + url.PathEscape(name)
}

// uploadPath returns the media upload path for the bucket.
func (c *Client) uploadPath() string {
	return "/upload/storage/v1/b/" + url.PathEscape(c.bucket) + "/o"
}
