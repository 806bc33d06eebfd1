// Package proxy brokers authenticated session requests to the third-party
// VPN API. Inbound bearer tokens arrive transport-encrypted; the proxy
// decrypts them, forwards the request, and re-encrypts the session secret in
// the response so the cleartext token never reaches the client.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	cryptoService "github.com/relaypass/relaypass/internal/crypto/service"
	apperrors "github.com/relaypass/relaypass/internal/errors"
	"github.com/relaypass/relaypass/internal/httputil"
)

// maxProxyBody bounds request and response payload reads.
const maxProxyBody = 1 << 20

// sessionTokenField is the response field carrying the session secret.
const sessionTokenField = "session_token"

// TransportCipher is the transport-scheme surface the proxy needs.
type TransportCipher interface {
	EncryptTransport(plaintext, aad []byte) (string, error)
	DecryptTransport(wire string, aad []byte) ([]byte, error)
}

// Handler forwards session requests to the VPN API.
type Handler struct {
	baseURL    string
	apiKey     string
	cipher     TransportCipher
	httpClient *http.Client
	logger     *slog.Logger

	now func() time.Time
}

// NewHandler creates a session proxy handler.
func NewHandler(baseURL, apiKey string, cipher TransportCipher, logger *slog.Logger) *Handler {
	return &Handler{
		baseURL:    baseURL,
		apiKey:     apiKey,
		cipher:     cipher,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// ProxyHandler forwards one session request.
// ANY /v1/session/*path - the subpath is appended to the VPN API's /v1
// namespace. A transport-encrypted bearer, when present, is decrypted with
// the request-bound AAD before forwarding.
func (h *Handler) ProxyHandler(c *gin.Context) {
	aad := cryptoService.RequestAAD(
		c.Request.Method,
		c.Request.Host,
		c.Request.URL.Path,
		h.now(),
	)

	bearer, err := h.decryptBearer(c.GetHeader("Authorization"), aad)
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrUnauthorized, "bearer token decryption failed"), "", h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	target := h.baseURL + "/v1" + c.Param("path")
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, bytes.NewReader(body))
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(err, "failed to build upstream request"), "", h.logger)
		return
	}
	if contentType := c.GetHeader("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Api-Key", h.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrRetryable, "vpn api request failed: "+err.Error()), "", h.logger)
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(err, "failed to read upstream response"), "", h.logger)
		return
	}

	payload, err = h.sealSessionToken(payload, aad)
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(err, "failed to seal session secret"), "", h.logger)
		return
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), payload)
}

// decryptBearer extracts and decrypts a transport-encrypted bearer token.
// Absent headers pass through as empty; a present header that fails to
// decrypt is an error, never forwarded raw.
func (h *Handler) decryptBearer(header string, aad []byte) (string, error) {
	if header == "" {
		return "", nil
	}
	wire := strings.TrimPrefix(header, "Bearer ")

	token, err := h.cipher.DecryptTransport(wire, aad)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// sealSessionToken re-encrypts the session secret field of a JSON response.
// Responses without the field, or non-JSON responses, pass through intact.
func (h *Handler) sealSessionToken(payload, aad []byte) ([]byte, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(payload, &object); err != nil {
		return payload, nil
	}

	raw, ok := object[sessionTokenField]
	if !ok {
		return payload, nil
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil || token == "" {
		return payload, nil
	}

	sealed, err := h.cipher.EncryptTransport([]byte(token), aad)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(sealed)
	if err != nil {
		return nil, err
	}
	object[sessionTokenField] = encoded

	return json.Marshal(object)
}
