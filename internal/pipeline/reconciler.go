package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// DefaultSettleDelay is how long the gateway needs before receipts can be queried.
const DefaultSettleDelay = 1500 * time.Millisecond

// Reconciler redeems tickets for receipts after a fixed settle delay.
type Reconciler struct {
	gateway     dispatch.Gateway
	settleDelay time.Duration
	logger      *slog.Logger
}

func NewReconciler(gateway dispatch.Gateway, settleDelay time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		gateway:     gateway,
		settleDelay: settleDelay,
		logger:      logger.With("component", "Reconciler"),
	}
}

// Reconcile waits once for the settle delay and then queries receipts for every
// ticket that carries an id. Each receipt chunk is queried independently; a
// failed chunk is logged and skipped. Receipts come back in ticket order.
func (r *Reconciler) Reconcile(ctx context.Context, tickets []notification.Ticket) []notification.Receipt {
	receipts := []notification.Receipt{}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return receipts
	}

	if r.settleDelay > 0 {
		timer := time.NewTimer(r.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Warn("Receipt settle delay interrupted", "err", ctx.Err())
			return receipts
		case <-timer.C:
		}
	}

	for idx, chunk := range r.gateway.ChunkTicketIDs(ids) {
		found, err := r.gateway.FetchReceipts(ctx, chunk)
		if err != nil {
			r.logger.Error("Failed to fetch receipt chunk, continuing with remaining chunks",
				"chunk", idx, "chunk_size", len(chunk), "err", err)
			chunkFailures("receipts").Inc()
			continue
		}
		for _, id := range chunk {
			if receipt, ok := found[id]; ok {
				receipts = append(receipts, normalizeReceipt(receipt))
			}
		}
	}
	return receipts
}

func normalizeReceipt(r notification.Receipt) notification.Receipt {
	if r.Status == "" {
		r.Status = notification.StatusUnknown
	}
	if len(r.Details) == 0 {
		r.Details = nil
	}
	return r
}
