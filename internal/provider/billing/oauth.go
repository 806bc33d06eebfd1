package billing

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

const (
	// tokenSafetyMargin expires cached tokens early so a token is never used
	// within a minute of its real expiry.
	tokenSafetyMargin = 60 * time.Second

	assertionLifetime = time.Hour
	grantType         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	publisherScope    = "https://www.googleapis.com/auth/androidpublisher"
)

// TokenSource mints and memoizes OAuth bearer tokens for a service account.
// The assertion is an RS256-signed JWT exchanged at the token endpoint; the
// resulting bearer is cached per service-account email with expire-on-read.
type TokenSource struct {
	email      string
	privateKey *rsa.PrivateKey
	tokenURL   string
	httpClient *http.Client

	cache *tokenCache
	now   func() time.Time
}

// NewTokenSource parses the service-account private key and builds a token
// source against the given token endpoint.
func NewTokenSource(email string, privateKeyPEM []byte, tokenURL string) (*TokenSource, error) {
	if email == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "service account email is required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse service account private key")
	}

	return &TokenSource{
		email:      email,
		privateKey: privateKey,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      newTokenCache(),
		now:        time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a valid bearer token, minting a new one when the cached one
// is missing or within the safety margin of expiry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := ts.cache.get(ts.email, ts.now()); ok {
		return token, nil
	}

	assertion, err := ts.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, "token exchange failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(payload, &token); err != nil {
		return "", apperrors.Wrap(err, "failed to decode token response")
	}
	if token.AccessToken == "" {
		return "", apperrors.New("token endpoint returned an empty access token")
	}

	expiresAt := ts.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	ts.cache.put(ts.email, token.AccessToken, expiresAt)

	return token.AccessToken, nil
}

func (ts *TokenSource) signAssertion() (string, error) {
	now := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.email,
		"scope": publisherScope,
		"aud":   ts.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.privateKey)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign token assertion")
	}
	return assertion, nil
}

// tokenCache memoizes bearer tokens per service-account email. Eviction is
// expire-on-read: a token inside the safety margin is dropped when fetched.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]cachedToken)}
}

func (c *tokenCache) get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.tokens[key]
	if !ok {
		return "", false
	}
	if now.Add(tokenSafetyMargin).After(cached.expiresAt) {
		delete(c.tokens, key)
		return "", false
	}
	return cached.token, true
}

func (c *tokenCache) put(key, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = cachedToken{token: token, expiresAt: expiresAt}
}
