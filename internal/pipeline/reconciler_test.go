package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Empty tickets - No delay and no gateway call", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		reconciler := pipeline.NewReconciler(gw, time.Hour, logger)

		start := time.Now()
		receipts := reconciler.Reconcile(ctx, nil)

		assert.Less(t, time.Since(start), time.Second)
		assert.NotNil(t, receipts)
		assert.Empty(t, receipts)
		gw.AssertNotCalled(t, "FetchReceipts", mock.Anything, mock.Anything)
	})

	t.Run("Only error tickets - Nothing to query", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		reconciler := pipeline.NewReconciler(gw, time.Hour, logger)

		receipts := reconciler.Reconcile(ctx, []notification.Ticket{{Status: notification.StatusError}})

		assert.Empty(t, receipts)
		gw.AssertNotCalled(t, "FetchReceipts", mock.Anything, mock.Anything)
	})

	t.Run("Waits for the settle delay before querying", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		gw.On("FetchReceipts", mock.Anything, []string{"t1"}).
			Return(map[string]notification.Receipt{"t1": {Status: "ok"}}, nil)
		reconciler := pipeline.NewReconciler(gw, 20*time.Millisecond, logger)

		start := time.Now()
		receipts := reconciler.Reconcile(ctx, []notification.Ticket{okTicket("t1")})

		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		require.Len(t, receipts, 1)
		gw.AssertExpectations(t)
	})

	t.Run("Partial Failure - Failed receipt chunk is isolated", func(t *testing.T) {
		gw := newMockGateway(100, 2)
		gw.On("FetchReceipts", mock.Anything, []string{"t1", "t2"}).Return(nil, gatewayErr("receipts"))
		gw.On("FetchReceipts", mock.Anything, []string{"t3"}).
			Return(map[string]notification.Receipt{"t3": {Status: "ok"}}, nil)
		reconciler := pipeline.NewReconciler(gw, 0, logger)

		receipts := reconciler.Reconcile(ctx, []notification.Ticket{okTicket("t1"), okTicket("t2"), okTicket("t3")})

		require.Len(t, receipts, 1)
		assert.Equal(t, "ok", receipts[0].Status)
		gw.AssertExpectations(t)
	})

	t.Run("Receipts are normalized and ordered by ticket", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		gw.On("FetchReceipts", mock.Anything, []string{"t1", "t2", "t3"}).Return(map[string]notification.Receipt{
			"t3": {Status: "error", Message: "gone", Details: map[string]any{"error": "DeviceNotRegistered"}},
			"t1": {},
			"t2": {Status: "ok", Details: map[string]any{}},
		}, nil)
		reconciler := pipeline.NewReconciler(gw, 0, logger)

		receipts := reconciler.Reconcile(ctx, []notification.Ticket{okTicket("t1"), okTicket("t2"), okTicket("t3")})

		require.Len(t, receipts, 3)
		assert.Equal(t, notification.Receipt{Status: "unknown"}, receipts[0])
		assert.Equal(t, notification.Receipt{Status: "ok"}, receipts[1])
		assert.Equal(t, "error", receipts[2].Status)
		assert.Equal(t, "gone", receipts[2].Message)
		assert.Equal(t, "DeviceNotRegistered", receipts[2].Details["error"])
	})

	t.Run("Missing receipts are omitted", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		gw.On("FetchReceipts", mock.Anything, []string{"t1", "t2"}).
			Return(map[string]notification.Receipt{"t2": {Status: "ok"}}, nil)
		reconciler := pipeline.NewReconciler(gw, 0, logger)

		receipts := reconciler.Reconcile(ctx, []notification.Ticket{okTicket("t1"), okTicket("t2")})
		assert.Len(t, receipts, 1)
	})

	t.Run("Cancelled context during settle delay returns no receipts", func(t *testing.T) {
		gw := newMockGateway(100, 300)
		reconciler := pipeline.NewReconciler(gw, time.Hour, logger)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		receipts := reconciler.Reconcile(cctx, []notification.Ticket{okTicket("t1")})

		assert.Empty(t, receipts)
		gw.AssertNotCalled(t, "FetchReceipts", mock.Anything, mock.Anything)
	})
}
