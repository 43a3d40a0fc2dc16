package pipeline_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
)

func TestSendRequestTransformer(t *testing.T) {
	t.Run("Success - Decodes payload", func(t *testing.T) {
		msg := &messagepipeline.Message{
			MessageData: messagepipeline.MessageData{
				ID:      "msg-1",
				Payload: []byte(`{"title":"Hi","body":"There","data":{"k":"v"},"targetToken":"A"}`),
			},
		}

		req, skip, err := pipeline.SendRequestTransformer(context.Background(), msg)
		require.NoError(t, err)
		assert.False(t, skip)
		assert.Equal(t, stringPtr("Hi"), req.Title)
		assert.Equal(t, stringPtr("There"), req.Body)
		assert.Equal(t, "v", req.Data["k"])
		assert.Equal(t, "A", req.TargetToken)
	})

	t.Run("Failure - Malformed payload is skipped", func(t *testing.T) {
		msg := &messagepipeline.Message{
			MessageData: messagepipeline.MessageData{ID: "msg-2", Payload: []byte("{not json")},
		}

		req, skip, err := pipeline.SendRequestTransformer(context.Background(), msg)
		assert.Nil(t, req)
		assert.True(t, skip)
		assert.ErrorContains(t, err, "msg-2")
	})
}
