// Package apns provides the gateway for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// MaxMessagesPerChunk bounds how many unary pushes make up one chunk.
const MaxMessagesPerChunk = 100

// Error codes reported in ticket details.
const (
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
	ErrorMessageTooBig       = "MessageTooBig"
	ErrorMessageRateExceeded = "MessageRateExceeded"
	ErrorInvalidCredentials  = "InvalidCredentials"
	ErrorUnknown             = "Unknown"
)

var deviceTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{64,200}$`)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file
	P8KeyContent string
	Sandbox      bool
}

// Gateway delivers through APNs. Every push is answered synchronously, so
// accepted pushes are recorded in the receipt store for FetchReceipts.
type Gateway struct {
	client   APNSClient
	topic    string // The App Bundle ID (e.g. com.tinywide.messenger)
	receipts dispatch.ReceiptStore
	logger   *slog.Logger
}

var _ dispatch.Gateway = (*Gateway)(nil)

// NewGateway creates a token-authenticated APNs gateway.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewGateway(cfg Config, receipts dispatch.ReceiptStore, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource).Production()
	if cfg.Sandbox {
		client = client.Development()
	}

	return newGateway(client, cfg.BundleID, receipts, logger), nil
}

func newGateway(client APNSClient, topic string, receipts dispatch.ReceiptStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:   client,
		topic:    topic,
		receipts: receipts,
		logger:   logger.With("component", "APNSGateway"),
	}
}

// IsValidToken accepts hex encoded device tokens.
func (g *Gateway) IsValidToken(deviceToken string) bool {
	return len(deviceToken)%2 == 0 && deviceTokenPattern.MatchString(deviceToken)
}

func (g *Gateway) ChunkMessages(msgs []notification.OutboundMessage) [][]notification.OutboundMessage {
	return dispatch.Chunk(msgs, MaxMessagesPerChunk)
}

// ChunkTicketIDs returns a single chunk; lookups are local.
func (g *Gateway) ChunkTicketIDs(ids []string) [][]string {
	return dispatch.Chunk(ids, 0)
}

// Submit pushes each message of the chunk in turn.
// Note: APNs HTTP/2 API is unary (one request per token). There is no "Multicast" endpoint.
// A push that fails in transport yields an error ticket; the chunk only fails
// as a whole when no push got through.
func (g *Gateway) Submit(ctx context.Context, chunk []notification.OutboundMessage) ([]notification.Ticket, error) {
	tickets := make([]notification.Ticket, 0, len(chunk))
	var lastTransportErr error
	transportFailures := 0

	for _, msg := range chunk {
		if err := ctx.Err(); err != nil {
			return nil, &dispatch.GatewayError{Op: "submit", Err: err}
		}

		n := &apns2.Notification{
			ApnsID:      uuid.NewString(),
			DeviceToken: msg.To,
			Topic:       g.topic,
			Payload:     buildPayload(msg),
		}

		res, err := g.client.Push(n)
		if err != nil {
			g.logger.Error("APNs transport failed", "token", msg.To, "err", err)
			transportFailures++
			lastTransportErr = err
			tickets = append(tickets, notification.Ticket{
				Status:  notification.StatusError,
				Message: err.Error(),
				Details: map[string]any{"error": ErrorUnknown},
			})
			continue
		}

		if !res.Sent() {
			g.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
			tickets = append(tickets, notification.Ticket{
				Status:  notification.StatusError,
				Message: fmt.Sprintf("%s (status %d)", res.Reason, res.StatusCode),
				Details: map[string]any{"error": reasonCode(res.Reason)},
			})
			continue
		}

		id := res.ApnsID
		if id == "" {
			id = n.ApnsID
		}
		tickets = append(tickets, notification.Ticket{ID: id, Status: notification.StatusOK})
		if err := g.receipts.Record(ctx, id, notification.Receipt{Status: notification.StatusOK}); err != nil {
			g.logger.Warn("Failed to record receipt", "ticket_id", id, "err", err)
		}
	}

	if len(chunk) > 0 && transportFailures == len(chunk) {
		return nil, &dispatch.GatewayError{
			Op:  "submit",
			Err: fmt.Errorf("all %d pushes failed: %w", transportFailures, lastTransportErr),
		}
	}
	return tickets, nil
}

func (g *Gateway) FetchReceipts(ctx context.Context, ids []string) (map[string]notification.Receipt, error) {
	found, err := g.receipts.Lookup(ctx, ids)
	if err != nil {
		return nil, &dispatch.GatewayError{Op: "receipts", Err: err}
	}
	return found, nil
}

func buildPayload(msg notification.OutboundMessage) *payload.Payload {
	// We use the builder pattern to construct the correct JSON structure
	builder := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound(msg.Sound)

	for k, v := range msg.Data {
		builder.Custom(k, v)
	}
	return builder
}

// reasonCode maps APNs rejection reasons onto ticket error codes.
// See: https://developer.apple.com/documentation/usernotifications/setting_up_a_remote_notification_server/handling_notification_responses_from_apns
func reasonCode(reason string) string {
	switch reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return ErrorDeviceNotRegistered
	case apns2.ReasonPayloadTooLarge:
		return ErrorMessageTooBig
	case apns2.ReasonTooManyRequests:
		return ErrorMessageRateExceeded
	case apns2.ReasonInvalidProviderToken, apns2.ReasonExpiredProviderToken:
		return ErrorInvalidCredentials
	default:
		return ErrorUnknown
	}
}
