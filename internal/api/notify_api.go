package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

type NotifyAPI struct {
	Sender pipeline.Sender
	Logger *slog.Logger
}

func NewNotifyAPI(sender pipeline.Sender, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		Sender: sender,
		Logger: logger.With("component", "NotifyAPI"),
	}
}

// SendNotification handles POST /api/send-notification. An empty body sends
// the default notification to every registered token.
func (api *NotifyAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notification.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Logger.Warn("SendNotification: JSON Decode failed", "err", err)
		writeFailure(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	summary, err := api.Sender.Send(r.Context(), req)
	if err != nil {
		var unexpected *pipeline.UnexpectedError
		switch {
		case errors.Is(err, pipeline.ErrEmptyRegistry):
			writeFailure(w, http.StatusBadRequest, "No tokens available in storage", "")
		case errors.Is(err, pipeline.ErrUnknownTarget):
			writeFailure(w, http.StatusBadRequest, "Specified token not found in storage", "")
		case errors.As(err, &unexpected):
			writeFailure(w, http.StatusInternalServerError, "Failed to process notifications", unexpected.Err.Error())
		default:
			api.Logger.Error("SendNotification: unclassified failure", "err", err)
			writeFailure(w, http.StatusInternalServerError, "Failed to process notifications", err.Error())
		}
		return
	}

	response.WriteJSON(w, http.StatusOK, summary)
}
