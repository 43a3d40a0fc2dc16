package pipeline

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	messagesAttempted = metrics.NewCounter("relay_messages_attempted_total")
	messagesSent      = metrics.NewCounter("relay_messages_sent_total")
	messagesFailed    = metrics.NewCounter("relay_messages_failed_total")
)

func chunkFailures(stage string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`relay_chunk_failures_total{stage=%q}`, stage))
}

func recordDispatch(result DispatchResult) {
	messagesAttempted.Add(result.Attempted)
	messagesSent.Add(result.Sent)
	messagesFailed.Add(result.Failed)
}
