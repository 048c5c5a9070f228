package gcs

import (
	"crypto/sha256"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// expiryMargin is subtracted from a token's expiry so a token is never used
// close enough to expiry to lapse between check and use.
const expiryMargin = 5 * time.Minute

// tokenRetention bounds how long the cache keeps an entry. Service-account
// tokens live one hour.
const tokenRetention = time.Hour

// TokenCacheKey identifies a credential by the SHA-256 of its raw secret.
type TokenCacheKey [sha256.Size]byte

// NewTokenCacheKey fingerprints a credential secret.
func NewTokenCacheKey(secret []byte) TokenCacheKey {
	return sha256.Sum256(secret)
}

// CachedToken is a bearer token with its absolute expiration time.
type CachedToken struct {
	AccessToken string
	Expiry      time.Time
}

// ExpiredAt reports whether the token must be refreshed at now. Exactly five
// minutes before expiry already counts as expired.
func (t CachedToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.Expiry.Add(-expiryMargin))
}

// TokenCache is a concurrency-safe store of bearer tokens keyed by credential
// fingerprint. Authenticators built with the same secret share one entry.
// Concurrent refreshes are last-writer-wins.
type TokenCache struct {
	entries *ttlcache.Cache[TokenCacheKey, CachedToken]
}

// NewTokenCache creates a cache and starts its eviction loop. Call Close to
// stop it.
func NewTokenCache() *TokenCache {
	entries := ttlcache.New[TokenCacheKey, CachedToken](
		ttlcache.WithTTL[TokenCacheKey, CachedToken](tokenRetention),
		ttlcache.WithDisableTouchOnHit[TokenCacheKey, CachedToken](),
	)

	go entries.Start()

	return &TokenCache{entries: entries}
}

// Get returns the cached token for key, if any. Expiry is not checked here.
func (c *TokenCache) Get(key TokenCacheKey) (CachedToken, bool) {
	item := c.entries.Get(key)
	if item == nil {
		return CachedToken{}, false
	}

	return item.Value(), true
}

// Set stores tok under key, replacing any previous entry.
func (c *TokenCache) Set(key TokenCacheKey, tok CachedToken) {
	c.entries.Set(key, tok, ttlcache.DefaultTTL)
}

// Len returns the number of cached entries.
func (c *TokenCache) Len() int {
	return c.entries.Len()
}

// Close stops the eviction loop.
func (c *TokenCache) Close() {
	c.entries.Stop()
}
