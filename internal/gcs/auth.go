package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// jwtBearerGrant is the OAuth2 grant type for signed service-account assertions.
const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// tokenResponse is the JSON shape returned by the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// StaticTokenSource returns the same token on every call. It serves
// emulators and pre-issued tokens; an empty token still sends the header.
type StaticTokenSource string

// Authenticate sets the fixed bearer token on req.
func (s StaticTokenSource) Authenticate(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+string(s))

	return nil
}

// Authenticator resolves bearer tokens for one service-account secret,
// minting a new one through the JWT-bearer grant only when the cached token
// is missing or within five minutes of expiry. It satisfies RequestAuthenticator.
type Authenticator struct {
	secret     []byte
	key        TokenCacheKey
	cache      *TokenCache
	httpClient *http.Client
	logger     *slog.Logger

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// NewAuthenticator creates an Authenticator for secret backed by cache.
// Authenticators sharing a cache and secret share tokens.
func NewAuthenticator(secret []byte, cache *TokenCache, httpClient *http.Client, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		secret:     secret,
		key:        NewTokenCacheKey(secret),
		cache:      cache,
		httpClient: httpClient,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// Token returns a valid bearer token, refreshing it if needed.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if tok, ok := a.cache.Get(a.key); ok && !tok.ExpiredAt(a.nowFunc()) {
		return tok.AccessToken, nil
	}

	tok, err := a.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	a.cache.Set(a.key, tok)

	return tok.AccessToken, nil
}

// Authenticate attaches a bearer token to req.
func (a *Authenticator) Authenticate(req *http.Request) error {
	tok, err := a.Token(req.Context())
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}

// fetchToken signs a new assertion and exchanges it at the token endpoint.
func (a *Authenticator) fetchToken(ctx context.Context) (CachedToken, error) {
	cred, err := ParseCredential(a.secret)
	if err != nil {
		return CachedToken{}, err
	}

	assertion, err := cred.SignAssertion(a.nowFunc())
	if err != nil {
		return CachedToken{}, err
	}

	a.logger.Debug("requesting access token",
		slog.String("client_email", cred.ClientEmail),
	)

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, fmt.Errorf("gcs: creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return CachedToken{}, fmt.Errorf("gcs: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		a.logger.Error("token request rejected",
			slog.Int("status", resp.StatusCode),
		)

		return CachedToken{}, &StorageError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        ErrAuthFailed,
		}
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr, "token"); err != nil {
		return CachedToken{}, err
	}

	if tr.AccessToken == "" {
		return CachedToken{}, fmt.Errorf("%w: token response has no access_token", ErrAuthFailed)
	}

	expiry := a.nowFunc().Add(time.Duration(tr.ExpiresIn) * time.Second)

	a.logger.Info("access token granted",
		slog.Time("expiry", expiry),
	)

	return CachedToken{AccessToken: tr.AccessToken, Expiry: expiry}, nil
}
