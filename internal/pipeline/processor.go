package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// NewSendProcessor runs queued send requests through sender.
//
// Precondition failures (nothing registered, unknown target) cannot succeed on
// redelivery, so they are logged and acknowledged. Anything else is returned
// so the message is retried.
func NewSendProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[notification.SendRequest] {
	return func(ctx context.Context, original messagepipeline.Message, request *notification.SendRequest) error {
		procLogger := logger.With(
			"pubsub_msg_id", original.ID,
			"targeted", request.TargetToken != "",
		)

		summary, err := sender.Send(ctx, *request)
		if err != nil {
			if errors.Is(err, ErrEmptyRegistry) || errors.Is(err, ErrUnknownTarget) {
				procLogger.Warn("Dropping send request", "reason", err)
				return nil
			}
			procLogger.Error("Send request failed", "err", err)
			return err
		}

		procLogger.Info("Queued send request processed",
			"attempted", summary.Stats.Attempted,
			"sent", summary.Stats.Sent,
			"failed", summary.Stats.Failed,
		)
		return nil
	}
}
