package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-push-relay/internal/storage/registry"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

var tokensRegistered = metrics.NewCounter("relay_tokens_registered_total")

// TokenRegistry is the subset of the registry the token endpoints use.
type TokenRegistry interface {
	Register(token string, info notification.DeviceInfo) (notification.Registration, error)
	List() []registry.Entry
}

type TokenAPI struct {
	Registry TokenRegistry
	Logger   *slog.Logger
}

func NewTokenAPI(reg TokenRegistry, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Registry: reg,
		Logger:   logger.With("component", "TokenAPI"),
	}
}

type StoreTokenRequest struct {
	Token      string                  `json:"token"`
	DeviceInfo notification.DeviceInfo `json:"deviceInfo"`
}

type StoreTokenResponse struct {
	Success   bool                      `json:"success"`
	TokenInfo notification.Registration `json:"tokenInfo"`
}

type ListTokensResponse struct {
	Count  int              `json:"count"`
	Tokens []registry.Entry `json:"tokens"`
}

// StoreToken handles POST /api/store-token.
func (api *TokenAPI) StoreToken(w http.ResponseWriter, r *http.Request) {
	var req StoreTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Warn("StoreToken: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "Invalid push token")
		return
	}

	reg, err := api.Registry.Register(req.Token, req.DeviceInfo)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidToken) {
			api.Logger.Warn("StoreToken: Validation failed", "token", req.Token)
			response.WriteJSONError(w, http.StatusBadRequest, "Invalid push token")
			return
		}
		api.Logger.Error("StoreToken: registration failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	tokensRegistered.Inc()
	api.Logger.Info("Token stored", "token", req.Token, "platform", reg.DeviceInfo.Platform)
	response.WriteJSON(w, http.StatusOK, StoreTokenResponse{Success: true, TokenInfo: reg})
}

// ListTokens handles GET /api/tokens.
func (api *TokenAPI) ListTokens(w http.ResponseWriter, _ *http.Request) {
	entries := api.Registry.List()
	response.WriteJSON(w, http.StatusOK, ListTokensResponse{Count: len(entries), Tokens: entries})
}
