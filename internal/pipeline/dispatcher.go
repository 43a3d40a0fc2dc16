package pipeline

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// DispatchResult aggregates the outcome of submitting every chunk of a send.
type DispatchResult struct {
	Tickets   []notification.Ticket
	Attempted int
	Sent      int
	Failed    int
}

// Dispatcher submits messages to a gateway chunk by chunk.
type Dispatcher struct {
	gateway dispatch.Gateway
	logger  *slog.Logger
}

func NewDispatcher(gateway dispatch.Gateway, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		gateway: gateway,
		logger:  logger.With("component", "Dispatcher"),
	}
}

// Dispatch submits msgs sequentially in gateway-sized chunks. A chunk that
// fails is logged and skipped; its messages produce no tickets. Dispatch
// never fails as a whole.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []notification.OutboundMessage) DispatchResult {
	result := DispatchResult{
		Tickets:   []notification.Ticket{},
		Attempted: len(msgs),
	}

	chunks := d.gateway.ChunkMessages(msgs)
	for idx, chunk := range chunks {
		tickets, err := d.gateway.Submit(ctx, chunk)
		if err != nil {
			d.logger.Error("Failed to submit chunk, continuing with remaining chunks",
				"chunk", idx, "chunk_size", len(chunk), "err", err)
			chunkFailures("submit").Inc()
			continue
		}
		result.Tickets = append(result.Tickets, tickets...)
	}

	result.Sent = len(result.Tickets)
	result.Failed = result.Attempted - result.Sent
	d.logger.Debug("Dispatch complete",
		"chunks", len(chunks), "attempted", result.Attempted, "sent", result.Sent, "failed", result.Failed)
	return result
}
