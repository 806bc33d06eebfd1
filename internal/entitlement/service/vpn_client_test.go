package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestVPNClientCreateAccount(t *testing.T) {
	expiry := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req accountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "month", req.Plan)
		assert.Equal(t, 3, req.Repeat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Account{
			UserID:       "user-42",
			SessionToken: "secret-session",
			ExpiresAt:    expiry,
		})
	}))
	defer server.Close()

	client := NewVPNClient(server.URL, "test-key", testLogger())
	account, err := client.CreateAccount(context.Background(), "month", 3)
	require.NoError(t, err)
	assert.Equal(t, "user-42", account.UserID)
	assert.Equal(t, "secret-session", account.SessionToken)
	assert.Equal(t, expiry, account.ExpiresAt)
}

func TestVPNClientGetStatus(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "Bearer secret-session", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(Account{UserID: "user-42", Banned: true})
		}))
		defer server.Close()

		client := NewVPNClient(server.URL, "test-key", testLogger())
		account, err := client.GetStatus(context.Background(), "secret-session")
		require.NoError(t, err)
		assert.True(t, account.Banned)
	})

	t.Run("maps invalid session error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(apiError{Error: "invalid_session", Message: "session not found"})
		}))
		defer server.Close()

		client := NewVPNClient(server.URL, "test-key", testLogger())
		_, err := client.GetStatus(context.Background(), "stale-session")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("other failures are generic errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewVPNClient(server.URL, "test-key", testLogger())
		_, err := client.GetStatus(context.Background(), "secret-session")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidSession)
	})
}

func TestVPNClientDeleteAccount(t *testing.T) {
	t.Run("succeeds on 2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := NewVPNClient(server.URL, "test-key", testLogger())
		assert.NoError(t, client.DeleteAccount(context.Background(), "secret-session"))
	})

	t.Run("invalid session surfaces the sentinel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(apiError{Error: "invalid_session"})
		}))
		defer server.Close()

		client := NewVPNClient(server.URL, "test-key", testLogger())
		assert.ErrorIs(t, client.DeleteAccount(context.Background(), "secret-session"), ErrInvalidSession)
	})
}

func TestVPNClientUpdateAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)

		var req accountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "year", req.Plan)
		assert.Equal(t, 1, req.Repeat)

		_ = json.NewEncoder(w).Encode(Account{UserID: "user-42", SessionToken: "secret-session"})
	}))
	defer server.Close()

	client := NewVPNClient(server.URL, "test-key", testLogger())
	account, err := client.UpdateAccount(context.Background(), "secret-session", "year", 1)
	require.NoError(t, err)
	assert.Equal(t, "user-42", account.UserID)
}
