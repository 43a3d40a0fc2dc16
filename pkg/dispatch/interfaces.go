package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// Gateway defines the contract for a third-party push service (Expo, FCM, APNs).
// Delivery is two-phase: Submit returns tickets immediately, and receipts for
// those tickets become available from FetchReceipts some time later.
type Gateway interface {
	// IsValidToken reports whether token matches the gateway's token grammar.
	// It must not perform any network call.
	IsValidToken(token string) bool

	// ChunkMessages partitions messages into batches no larger than the gateway accepts.
	ChunkMessages(msgs []notification.OutboundMessage) [][]notification.OutboundMessage

	// Submit sends one chunk and returns a ticket per message, in order.
	// A failure of the whole call is reported as a *GatewayError.
	Submit(ctx context.Context, chunk []notification.OutboundMessage) ([]notification.Ticket, error)

	// ChunkTicketIDs partitions ticket ids into receipt-query sized batches.
	ChunkTicketIDs(ids []string) [][]string

	// FetchReceipts returns the receipts currently available for ids.
	// Ids with no receipt yet are absent from the map.
	FetchReceipts(ctx context.Context, ids []string) (map[string]notification.Receipt, error)
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ReceiptStore keeps receipts for gateways that learn the delivery outcome at
// submit time and must answer FetchReceipts from their own records.
type ReceiptStore interface {
	Record(ctx context.Context, ticketID string, receipt notification.Receipt) error
	// Lookup returns the stored receipts for ids; unknown ids are absent.
	Lookup(ctx context.Context, ids []string) (map[string]notification.Receipt, error)
}
