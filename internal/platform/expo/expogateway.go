// Package expo implements dispatch.Gateway on top of the Expo push service.
// Submission returns tickets; receipts are redeemed later through getReceipts.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

const (
	DefaultBaseURL = "https://exp.host/--/api/v2"
	DefaultTimeout = 10 * time.Second

	// MaxMessagesPerChunk and MaxReceiptIDsPerChunk are the service's request limits.
	MaxMessagesPerChunk   = 100
	MaxReceiptIDsPerChunk = 300

	gzipThreshold = 1024
)

var uuidTokenPattern = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

// Config holds the connection settings for the Expo push service.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Gateway talks to the Expo push API over HTTP.
type Gateway struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      *slog.Logger
}

var _ dispatch.Gateway = (*Gateway)(nil)

// NewGateway creates an Expo gateway. A nil client gets a default one with cfg.Timeout.
func NewGateway(cfg Config, client *http.Client, logger *slog.Logger) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		client:      client,
		logger:      logger.With("component", "ExpoGateway"),
	}
}

// IsValidToken accepts ExponentPushToken[...] / ExpoPushToken[...] and bare
// 8-4-4-4-12 alphanumeric device ids.
func (g *Gateway) IsValidToken(token string) bool {
	return IsExpoPushToken(token)
}

// IsExpoPushToken reports whether token has an Expo push token shape.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return uuidTokenPattern.MatchString(token)
}

func (g *Gateway) ChunkMessages(msgs []notification.OutboundMessage) [][]notification.OutboundMessage {
	return dispatch.Chunk(msgs, MaxMessagesPerChunk)
}

func (g *Gateway) ChunkTicketIDs(ids []string) [][]string {
	return dispatch.Chunk(ids, MaxReceiptIDsPerChunk)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendResponse struct {
	Data   []notification.Ticket `json:"data"`
	Errors []apiError            `json:"errors"`
}

type receiptsRequest struct {
	IDs []string `json:"ids"`
}

type receiptsResponse struct {
	Data   map[string]notification.Receipt `json:"data"`
	Errors []apiError                      `json:"errors"`
}

// Submit posts one chunk to /push/send. The service must return exactly one
// ticket per message, in order.
func (g *Gateway) Submit(ctx context.Context, chunk []notification.OutboundMessage) ([]notification.Ticket, error) {
	var resp sendResponse
	status, err := g.post(ctx, "submit", "/push/send", chunk, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &dispatch.GatewayError{Op: "submit", StatusCode: status, Err: joinAPIErrors(resp.Errors)}
	}
	if len(resp.Data) != len(chunk) {
		return nil, &dispatch.GatewayError{
			Op:         "submit",
			StatusCode: status,
			Err:        fmt.Errorf("expected %d tickets, got %d", len(chunk), len(resp.Data)),
		}
	}

	for _, ticket := range resp.Data {
		if ticket.Status == notification.StatusError {
			g.logger.Warn("Message rejected by push service", "message", ticket.Message, "details", ticket.Details)
		}
	}
	return resp.Data, nil
}

// FetchReceipts posts one chunk of ticket ids to /push/getReceipts. Ids the
// service has no receipt for are absent from the result.
func (g *Gateway) FetchReceipts(ctx context.Context, ids []string) (map[string]notification.Receipt, error) {
	var resp receiptsResponse
	status, err := g.post(ctx, "receipts", "/push/getReceipts", receiptsRequest{IDs: ids}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &dispatch.GatewayError{Op: "receipts", StatusCode: status, Err: joinAPIErrors(resp.Errors)}
	}
	if resp.Data == nil {
		return map[string]notification.Receipt{}, nil
	}
	return resp.Data, nil
}

func (g *Gateway) post(ctx context.Context, op, path string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, &dispatch.GatewayError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	compressed := len(body) > gzipThreshold
	if compressed {
		if body, err = gzipBytes(body); err != nil {
			return 0, &dispatch.GatewayError{Op: op, Err: fmt.Errorf("failed to compress request: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, &dispatch.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, &dispatch.GatewayError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &dispatch.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &dispatch.GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", snippet(raw)),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &dispatch.GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return resp.StatusCode, nil
}

func gzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinAPIErrors(errs []apiError) error {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return fmt.Errorf("push service errors: %s", strings.Join(parts, "; "))
}

func snippet(raw []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
