package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-relay/internal/api"
	"github.com/tinywideclouds/go-push-relay/internal/platform/expo"
	"github.com/tinywideclouds/go-push-relay/internal/storage/registry"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Setup ---
func setupTokenAPI(t *testing.T) (*api.TokenAPI, *registry.Registry) {
	t.Helper()
	reg := registry.New(expo.NewGateway(expo.Config{}, nil, newTestLogger()))
	return api.NewTokenAPI(reg, newTestLogger()), reg
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// --- Tests ---

func TestStoreToken(t *testing.T) {
	const token = "ExponentPushToken[abc123]"

	t.Run("Success", func(t *testing.T) {
		apiHandler, reg := setupTokenAPI(t)
		body, _ := json.Marshal(map[string]any{
			"token":      token,
			"deviceInfo": map[string]string{"platform": "ios"},
		})

		w := httptest.NewRecorder()
		apiHandler.StoreToken(w, httptest.NewRequest(http.MethodPost, "/api/store-token", bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Success   bool `json:"success"`
			TokenInfo struct {
				StoredAt   string                  `json:"storedAt"`
				LastUsed   *string                 `json:"lastUsed"`
				DeviceInfo notification.DeviceInfo `json:"deviceInfo"`
			} `json:"tokenInfo"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.TokenInfo.StoredAt)
		assert.Nil(t, resp.TokenInfo.LastUsed)
		assert.Equal(t, notification.DeviceInfo{Platform: "ios", OSVersion: "unknown", AppVersion: "unknown"}, resp.TokenInfo.DeviceInfo)
		assert.True(t, reg.Contains(token))
	})

	t.Run("Failure - Invalid token leaves registry untouched", func(t *testing.T) {
		apiHandler, reg := setupTokenAPI(t)

		w := httptest.NewRecorder()
		apiHandler.StoreToken(w, postJSON("/api/store-token", `{"token":"not-a-token"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid push token")
		assert.True(t, reg.IsEmpty())
	})

	t.Run("Failure - Missing token", func(t *testing.T) {
		apiHandler, _ := setupTokenAPI(t)

		w := httptest.NewRecorder()
		apiHandler.StoreToken(w, postJSON("/api/store-token", `{}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Failure - Bad JSON", func(t *testing.T) {
		apiHandler, _ := setupTokenAPI(t)

		w := httptest.NewRecorder()
		apiHandler.StoreToken(w, postJSON("/api/store-token", `{bad-json`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListTokens(t *testing.T) {
	apiHandler, reg := setupTokenAPI(t)

	t.Run("Empty registry", func(t *testing.T) {
		w := httptest.NewRecorder()
		apiHandler.ListTokens(w, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"count":0,"tokens":[]}`, w.Body.String())
	})

	t.Run("Lists entries in registration order", func(t *testing.T) {
		for _, token := range []string{"ExponentPushToken[one]", "ExpoPushToken[two]"} {
			_, err := reg.Register(token, notification.DeviceInfo{})
			require.NoError(t, err)
		}

		w := httptest.NewRecorder()
		apiHandler.ListTokens(w, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Count  int `json:"count"`
			Tokens []struct {
				Token      string                  `json:"token"`
				StoredAt   string                  `json:"storedAt"`
				LastUsed   *string                 `json:"lastUsed"`
				DeviceInfo notification.DeviceInfo `json:"deviceInfo"`
			} `json:"tokens"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Tokens, 2)
		assert.Equal(t, "ExponentPushToken[one]", resp.Tokens[0].Token)
		assert.Equal(t, "ExpoPushToken[two]", resp.Tokens[1].Token)
		assert.Equal(t, "unknown", resp.Tokens[1].DeviceInfo.Platform)
		assert.NotEmpty(t, resp.Tokens[0].StoredAt)
	})
}
