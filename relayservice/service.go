// Package relayservice assembles the push relay: the token registry, the send
// pipeline, its HTTP surface, and the optional Pub/Sub ingest of send requests.
package relayservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-push-relay/internal/api"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/internal/storage/registry"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-push-relay/pkg/notification"
	"github.com/tinywideclouds/go-push-relay/relayservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	registry        *registry.Registry
	pipelineService *messagepipeline.StreamingService[notification.SendRequest]
	logger          *slog.Logger
}

// New assembles the service around gateway. A nil consumer disables queue ingest.
func New(
	cfg *config.Config,
	gateway dispatch.Gateway,
	consumer messagepipeline.MessageConsumer,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Registry and Orchestrator
	tokenRegistry := registry.New(gateway)
	orchestrator := pipeline.NewOrchestrator(tokenRegistry, gateway, cfg.SettleDelay, logger)

	// 3. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[notification.SendRequest]
	if consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService[notification.SendRequest](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.SendRequestTransformer,
			pipeline.NewSendProcessor(orchestrator, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. API
	tokenAPI := api.NewTokenAPI(tokenRegistry, logger)
	notifyAPI := api.NewNotifyAPI(orchestrator, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	// OPTIONS
	handle("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {})

	handle("POST /api/store-token", tokenAPI.StoreToken)
	handle("GET /api/tokens", tokenAPI.ListTokens)
	handle("POST /api/send-notification", notifyAPI.SendNotification)
	handle("GET /api/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return &Wrapper{
		BaseServer:      baseServer,
		registry:        tokenRegistry,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

// Registry exposes the token registry shared by the HTTP and queue paths.
func (w *Wrapper) Registry() *registry.Registry {
	return w.registry
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Send request ingest pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
