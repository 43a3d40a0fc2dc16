package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, req notification.SendRequest) (*pipeline.Summary, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Summary), args.Error(1)
}

func TestSendProcessor(t *testing.T) {
	ctx := context.Background()
	original := messagepipeline.Message{MessageData: messagepipeline.MessageData{ID: "msg-1"}}
	req := &notification.SendRequest{Title: stringPtr("Hi")}

	t.Run("Success - Ack", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, *req).Return(&pipeline.Summary{Success: true}, nil)

		err := pipeline.NewSendProcessor(sender, newTestLogger())(ctx, original, req)
		assert.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("Precondition failure - Ack and drop", func(t *testing.T) {
		for _, precondition := range []error{pipeline.ErrEmptyRegistry, pipeline.ErrUnknownTarget} {
			sender := new(mockSender)
			sender.On("Send", mock.Anything, *req).Return(nil, precondition)

			err := pipeline.NewSendProcessor(sender, newTestLogger())(ctx, original, req)
			assert.NoError(t, err)
		}
	})

	t.Run("Unexpected failure - Nack for retry", func(t *testing.T) {
		sender := new(mockSender)
		cause := &pipeline.UnexpectedError{Err: errors.New("boom")}
		sender.On("Send", mock.Anything, *req).Return(nil, cause)

		err := pipeline.NewSendProcessor(sender, newTestLogger())(ctx, original, req)
		assert.ErrorIs(t, err, cause)
	})
}
