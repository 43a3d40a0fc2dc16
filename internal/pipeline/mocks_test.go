package pipeline_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockGateway accepts every token and chunks with the configured sizes.
// Submit and FetchReceipts are driven by testify expectations.
type mockGateway struct {
	mock.Mock
	messageChunk int
	receiptChunk int
}

func newMockGateway(messageChunk, receiptChunk int) *mockGateway {
	return &mockGateway{messageChunk: messageChunk, receiptChunk: receiptChunk}
}

func (m *mockGateway) IsValidToken(token string) bool { return token != "" }

func (m *mockGateway) ChunkMessages(msgs []notification.OutboundMessage) [][]notification.OutboundMessage {
	return dispatch.Chunk(msgs, m.messageChunk)
}

func (m *mockGateway) ChunkTicketIDs(ids []string) [][]string {
	return dispatch.Chunk(ids, m.receiptChunk)
}

func (m *mockGateway) Submit(ctx context.Context, chunk []notification.OutboundMessage) ([]notification.Ticket, error) {
	args := m.Called(ctx, chunk)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notification.Ticket), args.Error(1)
}

func (m *mockGateway) FetchReceipts(ctx context.Context, ids []string) (map[string]notification.Receipt, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]notification.Receipt), args.Error(1)
}

// chunkStartingWith matches a submitted chunk by its first recipient.
func chunkStartingWith(token string) any {
	return mock.MatchedBy(func(chunk []notification.OutboundMessage) bool {
		return len(chunk) > 0 && chunk[0].To == token
	})
}

func okTicket(id string) notification.Ticket {
	return notification.Ticket{ID: id, Status: notification.StatusOK}
}

func stringPtr(s string) *string {
	return &s
}

func gatewayErr(op string) error {
	return &dispatch.GatewayError{Op: op, StatusCode: 503, Err: io.ErrUnexpectedEOF}
}
