// Package pipeline contains the notification dispatch pipeline: message
// building, chunked submission, receipt reconciliation, and the orchestrator
// that runs them in order for each send request.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

var (
	// ErrEmptyRegistry is returned when a send is requested with no registered tokens.
	ErrEmptyRegistry = errors.New("no tokens available in storage")
	// ErrUnknownTarget is returned when the requested target token is not registered.
	ErrUnknownTarget = errors.New("specified token not found in storage")
)

const (
	defaultTitle = "Test"
	defaultBody  = "Hello from server!"
	defaultSound = "default"
)

// TokenSource is the read side of the token registry used to build messages.
type TokenSource interface {
	IsEmpty() bool
	Contains(token string) bool
	Tokens() []string
}

// BuildMessages produces one message per recipient of req, together with the
// tokens involved. Without a target every token registered at call time
// receives a message; with a target only that token does.
func BuildMessages(req notification.SendRequest, src TokenSource, now time.Time) ([]notification.OutboundMessage, []string, error) {
	if src.IsEmpty() {
		return nil, nil, ErrEmptyRegistry
	}
	if req.TargetToken != "" && !src.Contains(req.TargetToken) {
		return nil, nil, ErrUnknownTarget
	}

	title := defaultTitle
	if req.Title != nil {
		title = *req.Title
	}
	body := defaultBody
	if req.Body != nil {
		body = *req.Body
	}
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	stamp := now.UnixMilli()
	newMessage := func(token, trackingID string) notification.OutboundMessage {
		return notification.OutboundMessage{
			To:         token,
			Sound:      defaultSound,
			Title:      title,
			Body:       body,
			Data:       data,
			TrackingID: trackingID,
		}
	}

	if req.TargetToken != "" {
		msg := newMessage(req.TargetToken, fmt.Sprintf("notif-%d", stamp))
		return []notification.OutboundMessage{msg}, []string{req.TargetToken}, nil
	}

	tokens := src.Tokens()
	messages := make([]notification.OutboundMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, newMessage(token, fmt.Sprintf("notif-%d-%s", stamp, lastN(token, 4))))
	}
	return messages, tokens, nil
}

func lastN(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
