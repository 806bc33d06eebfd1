// Package service implements outbound integrations for the entitlement
// subsystem, currently the third-party VPN session API client.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// ErrInvalidSession indicates the provider no longer recognizes the session
// token. On reads the caller treats the stored credential as stale; on
// deletes it counts as success (the session is already gone).
var ErrInvalidSession = errors.New("invalid session")

// Account is the provider's view of a VPN account session.
type Account struct {
	UserID       string    `json:"user_id"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Banned       bool      `json:"banned"`
	Test         bool      `json:"test"`
}

// VPNClient calls the third-party VPN session API. Create is API-key
// authenticated; the per-session operations are bearer-authenticated with
// the decrypted session secret.
type VPNClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVPNClient creates a VPNClient for the given base URL and API key.
func NewVPNClient(baseURL, apiKey string, logger *slog.Logger) *VPNClient {
	return &VPNClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type accountRequest struct {
	Plan   string `json:"plan"`
	Repeat int    `json:"repeat"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateAccount creates a new account session sized as plan × repeat.
func (v *VPNClient) CreateAccount(ctx context.Context, plan string, repeat int) (*Account, error) {
	return v.doAccount(ctx, http.MethodPost, "/v1/accounts", "", &accountRequest{Plan: plan, Repeat: repeat})
}

// GetStatus fetches the live status of the session behind the bearer token.
func (v *VPNClient) GetStatus(ctx context.Context, sessionToken string) (*Account, error) {
	return v.doAccount(ctx, http.MethodGet, "/v1/accounts/me", sessionToken, nil)
}

// UpdateAccount extends the session behind the bearer token by plan × repeat.
func (v *VPNClient) UpdateAccount(ctx context.Context, sessionToken, plan string, repeat int) (*Account, error) {
	return v.doAccount(ctx, http.MethodPut, "/v1/accounts/me", sessionToken, &accountRequest{Plan: plan, Repeat: repeat})
}

// DeleteAccount deletes the session behind the bearer token. An
// ErrInvalidSession response means the session is already gone and is
// returned as-is so the caller can treat it as success.
func (v *VPNClient) DeleteAccount(ctx context.Context, sessionToken string) error {
	_, err := v.doAccount(ctx, http.MethodDelete, "/v1/accounts/me", sessionToken, nil)
	return err
}

func (v *VPNClient) doAccount(ctx context.Context, method, path, bearer string, body *accountRequest) (*Account, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", v.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "vpn api request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read vpn api response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error == "invalid_session" {
			return nil, ErrInvalidSession
		}
		v.logger.Warn("vpn api error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("vpn api returned status %d", resp.StatusCode)
	}

	if method == http.MethodDelete {
		return nil, nil
	}

	var account Account
	if err := json.Unmarshal(payload, &account); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode vpn api response")
	}
	return &account, nil
}
