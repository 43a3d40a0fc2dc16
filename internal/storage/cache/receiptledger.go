package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// DefaultLedgerTTL keeps receipts as long as the Expo service does.
const DefaultLedgerTTL = 24 * time.Hour

// ReceiptLedger remembers delivery outcomes for gateways that know the result
// at submit time, so they can answer receipt queries later.
type ReceiptLedger struct {
	cache CacheClient
	ttl   time.Duration
}

func NewReceiptLedger(cache CacheClient, ttl time.Duration) *ReceiptLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &ReceiptLedger{cache: cache, ttl: ttl}
}

// Record stores the receipt for ticketID.
func (l *ReceiptLedger) Record(ctx context.Context, ticketID string, receipt notification.Receipt) error {
	if err := l.cache.Set(ctx, l.key(ticketID), receipt, l.ttl); err != nil {
		return fmt.Errorf("failed to record receipt %s: %w", ticketID, err)
	}
	return nil
}

// Lookup returns the recorded receipts for ids. Unknown ids are absent from
// the result; any other cache failure aborts the lookup.
func (l *ReceiptLedger) Lookup(ctx context.Context, ids []string) (map[string]notification.Receipt, error) {
	found := make(map[string]notification.Receipt, len(ids))
	for _, id := range ids {
		var receipt notification.Receipt
		err := l.cache.Get(ctx, l.key(id), &receipt)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up receipt %s: %w", id, err)
		}
		found[id] = receipt
	}
	return found, nil
}

func (l *ReceiptLedger) key(ticketID string) string {
	return fmt.Sprintf("relay:receipt:%s", ticketID)
}
