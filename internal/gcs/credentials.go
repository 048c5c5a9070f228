package gcs

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jws"
)

// StorageScope is the OAuth2 scope requested for every token.
const StorageScope = "https://www.googleapis.com/auth/cloud-platform"

// assertionLifetime is how long a signed assertion stays valid.
const assertionLifetime = time.Hour

// Credential is a parsed service-account key. It is parsed on demand each
// time a token must be minted and is never persisted.
type Credential struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// ParseCredential parses a service-account JSON key. A missing token_uri
// falls back to Google's default token endpoint.
func ParseCredential(secret []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(secret, &cred); err != nil {
		return nil, fmt.Errorf("gcs: parsing credential: %w", err)
	}

	if cred.ClientEmail == "" {
		return nil, errors.New("gcs: credential has no client_email")
	}

	if cred.PrivateKey == "" {
		return nil, errors.New("gcs: credential has no private_key")
	}

	if cred.TokenURI == "" {
		cred.TokenURI = google.JWTTokenURL
	}

	return &cred, nil
}

// SignAssertion builds the RS256 JWT-bearer assertion for the token
// endpoint, issued at now and expiring one hour later.
func (c *Credential) SignAssertion(now time.Time) (string, error) {
	key, err := c.signingKey()
	if err != nil {
		return "", err
	}

	header := &jws.Header{Algorithm: "RS256", Typ: "JWT"}
	claims := &jws.ClaimSet{
		Iss:   c.ClientEmail,
		Scope: StorageScope,
		Aud:   c.TokenURI,
		Iat:   now.Unix(),
		Exp:   now.Add(assertionLifetime).Unix(),
	}

	assertion, err := jws.Encode(header, claims, key)
	if err != nil {
		return "", fmt.Errorf("gcs: signing assertion: %w", err)
	}

	return assertion, nil
}

// signingKey decodes the PEM private key, accepting PKCS#8 and PKCS#1.
func (c *Credential) signingKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(c.PrivateKey))
	if block == nil {
		return nil, errors.New("gcs: private_key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("gcs: private_key is not an RSA key")
		}

		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("gcs: parsing private_key: %w", err)
	}

	return key, nil
}
