package gcsfs

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/gcsfs/internal/gcs"
)

// Provider builds FileSystems that share one token cache, so every
// FileSystem configured with the same service-account secret reuses a
// single bearer token.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	cache      *gcs.TokenCache
}

// NewProvider creates a Provider. An empty baseURL selects the public
// endpoint. Close releases the token cache.
func NewProvider(baseURL string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
		cache:      gcs.NewTokenCache(),
	}
}

// FileSystem returns a FileSystem over bucket authenticated with secret, a
// service-account JSON key. A nil secret sends requests with an empty bearer
// token, which only emulators accept.
func (p *Provider) FileSystem(secret []byte, bucket string, opts Options) (*FileSystem, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcsfs: bucket name is required")
	}

	var auth gcs.RequestAuthenticator = gcs.StaticTokenSource("")

	if secret != nil {
		cred, err := gcs.ParseCredential(secret)
		if err != nil {
			return nil, err
		}

		auth = gcs.NewAuthenticator(secret, p.cache, p.httpClient, p.logger)

		p.logger.Debug("using service account", slog.String("client_email", cred.ClientEmail))
	}

	if opts.Logger == nil {
		opts.Logger = p.logger
	}

	client := gcs.NewClient(p.baseURL, bucket, p.httpClient, auth, p.logger, p.userAgent)

	return New(client, opts), nil
}

// CachedTokens returns the number of credentials with a cached token.
func (p *Provider) CachedTokens() int {
	return p.cache.Len()
}

// Close stops the token cache.
func (p *Provider) Close() {
	p.cache.Close()
}
