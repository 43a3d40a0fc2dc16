// Package fcm implements dispatch.Gateway on top of Firebase Cloud Messaging.
package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// MaxMessagesPerChunk is the SendEach batch limit.
const MaxMessagesPerChunk = 500

// Error codes reported in ticket details, shared with the Expo vocabulary.
const (
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
	ErrorInvalidArgument     = "InvalidArgument"
	ErrorMessageRateExceeded = "MessageRateExceeded"
	ErrorMismatchSenderID    = "MismatchSenderId"
	ErrorInvalidCredentials  = "InvalidCredentials"
	ErrorUnknown             = "Unknown"
)

const (
	minTokenLength = 20
	maxTokenLength = 4096
)

var registrationTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]+$`)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// Gateway delivers through FCM. FCM reports the outcome synchronously, so
// accepted messages are recorded in the receipt store and FetchReceipts
// answers from there.
type Gateway struct {
	client   MessagingClient
	receipts dispatch.ReceiptStore
	logger   *slog.Logger
}

var _ dispatch.Gateway = (*Gateway)(nil)

// NewGateway accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewGateway(client MessagingClient, receipts dispatch.ReceiptStore, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:   client,
		receipts: receipts,
		logger:   logger.With("component", "FCMGateway"),
	}
}

func (g *Gateway) IsValidToken(token string) bool {
	n := len(token)
	return n >= minTokenLength && n <= maxTokenLength && registrationTokenPattern.MatchString(token)
}

func (g *Gateway) ChunkMessages(msgs []notification.OutboundMessage) [][]notification.OutboundMessage {
	return dispatch.Chunk(msgs, MaxMessagesPerChunk)
}

// ChunkTicketIDs returns a single chunk; lookups are local.
func (g *Gateway) ChunkTicketIDs(ids []string) [][]string {
	return dispatch.Chunk(ids, 0)
}

func (g *Gateway) Submit(ctx context.Context, chunk []notification.OutboundMessage) ([]notification.Ticket, error) {
	messages := make([]*messaging.Message, 0, len(chunk))
	for _, msg := range chunk {
		messages = append(messages, toFCMMessage(msg))
	}

	br, err := g.client.SendEach(ctx, messages)
	if err != nil {
		return nil, &dispatch.GatewayError{Op: "submit", Err: fmt.Errorf("fcm transport failed: %w", err)}
	}
	if len(br.Responses) != len(chunk) {
		return nil, &dispatch.GatewayError{
			Op:  "submit",
			Err: fmt.Errorf("expected %d responses, got %d", len(chunk), len(br.Responses)),
		}
	}

	tickets := make([]notification.Ticket, 0, len(chunk))
	for _, resp := range br.Responses {
		if !resp.Success {
			tickets = append(tickets, notification.Ticket{
				Status:  notification.StatusError,
				Message: errorMessage(resp.Error),
				Details: map[string]any{"error": errorCode(resp.Error)},
			})
			continue
		}

		tickets = append(tickets, notification.Ticket{ID: resp.MessageID, Status: notification.StatusOK})
		if err := g.receipts.Record(ctx, resp.MessageID, notification.Receipt{Status: notification.StatusOK}); err != nil {
			g.logger.Warn("Failed to record receipt", "ticket_id", resp.MessageID, "err", err)
		}
	}

	g.logger.Debug("FCM batch sent", "success", br.SuccessCount, "failure", br.FailureCount)
	return tickets, nil
}

func (g *Gateway) FetchReceipts(ctx context.Context, ids []string) (map[string]notification.Receipt, error) {
	found, err := g.receipts.Lookup(ctx, ids)
	if err != nil {
		return nil, &dispatch.GatewayError{Op: "receipts", Err: err}
	}
	return found, nil
}

func toFCMMessage(msg notification.OutboundMessage) *messaging.Message {
	return &messaging.Message{
		Token: msg.To,
		Data:  stringifyData(msg.Data),
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: msg.Sound},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: msg.Sound},
			},
		},
	}
}

// stringifyData converts the payload to FCM's string-only data map.
// Non-string values are JSON encoded.
func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(encoded)
	}
	return out
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ErrorUnknown
	case messaging.IsRegistrationTokenNotRegistered(err):
		return ErrorDeviceNotRegistered
	case messaging.IsInvalidArgument(err):
		return ErrorInvalidArgument
	case messaging.IsQuotaExceeded(err):
		return ErrorMessageRateExceeded
	case messaging.IsSenderIDMismatch(err):
		return ErrorMismatchSenderID
	case messaging.IsThirdPartyAuthError(err):
		return ErrorInvalidCredentials
	default:
		return ErrorUnknown
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "message was not delivered"
	}
	return err.Error()
}
