package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// maxReportedTokens caps lastUsedTokens in the summary.
const maxReportedTokens = 3

// Registry is the subset of the token registry the orchestrator needs.
type Registry interface {
	TokenSource
	Touch(token string, at time.Time)
}

// Sender runs a send request end to end.
type Sender interface {
	Send(ctx context.Context, req notification.SendRequest) (*Summary, error)
}

// UnexpectedError wraps any fault raised after preconditions were checked.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("failed to process notifications: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Stats counts messages across a single send.
type Stats struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Summary is the outcome of a successful send.
type Summary struct {
	Success        bool                   `json:"success"`
	Stats          Stats                  `json:"stats"`
	Receipts       []notification.Receipt `json:"receipts"`
	FirstTicketID  *string                `json:"firstTicketId"`
	LastUsedTokens []string               `json:"lastUsedTokens"`
}

// Orchestrator composes builder, dispatcher and reconciler for each send request.
type Orchestrator struct {
	registry   Registry
	dispatcher *Dispatcher
	reconciler *Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(registry Registry, gateway dispatch.Gateway, settleDelay time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		dispatcher: NewDispatcher(gateway, logger),
		reconciler: NewReconciler(gateway, settleDelay, logger),
		logger:     logger.With("component", "Orchestrator"),
		now:        time.Now,
	}
}

// Send validates preconditions, then builds, dispatches and reconciles the
// notification and marks every involved token as used. ErrEmptyRegistry and
// ErrUnknownTarget are returned before any gateway call; any later fault is
// returned as *UnexpectedError. The send is not interrupted if ctx is
// cancelled once it has started.
func (o *Orchestrator) Send(ctx context.Context, req notification.SendRequest) (*Summary, error) {
	if o.registry.IsEmpty() {
		return nil, ErrEmptyRegistry
	}
	if req.TargetToken != "" && !o.registry.Contains(req.TargetToken) {
		return nil, ErrUnknownTarget
	}

	sendLogger := o.logger.With("send_id", uuid.NewString())
	summary, err := o.run(context.WithoutCancel(ctx), req, sendLogger)
	if err != nil {
		if errors.Is(err, ErrEmptyRegistry) || errors.Is(err, ErrUnknownTarget) {
			return nil, err
		}
		sendLogger.Error("Notification processing failed", "err", err)
		return nil, &UnexpectedError{Err: err}
	}
	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context, req notification.SendRequest, logger *slog.Logger) (summary *Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("panic during send: %v", r)
		}
	}()

	messages, involved, err := BuildMessages(req, o.registry, o.now())
	if err != nil {
		return nil, err
	}
	logger.Info("Dispatching notification", "messages", len(messages), "targeted", req.TargetToken != "")

	result := o.dispatcher.Dispatch(ctx, messages)
	recordDispatch(result)

	receipts := []notification.Receipt{}
	if len(result.Tickets) > 0 {
		receipts = o.reconciler.Reconcile(ctx, result.Tickets)
	}

	usedAt := o.now()
	for _, token := range involved {
		o.registry.Touch(token, usedAt)
	}

	summary = &Summary{
		Success: true,
		Stats: Stats{
			Attempted: result.Attempted,
			Sent:      result.Sent,
			Failed:    result.Failed,
		},
		Receipts:       receipts,
		LastUsedTokens: involved[:min(len(involved), maxReportedTokens)],
	}
	if len(result.Tickets) > 0 && result.Tickets[0].ID != "" {
		id := result.Tickets[0].ID
		summary.FirstTicketID = &id
	}

	logger.Info("Notification processed",
		"attempted", result.Attempted, "sent", result.Sent, "failed", result.Failed, "receipts", len(receipts))
	return summary, nil
}
