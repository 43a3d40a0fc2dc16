package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

// SendRequestTransformer is a dataflow Transformer that unmarshals a queued
// message payload into a notification.SendRequest.
//
// Malformed payloads are skipped so the StreamingService can Nack them and let
// the subscription's dead-letter policy take over.
func SendRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.SendRequest, bool, error) {
	var req notification.SendRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal send request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
