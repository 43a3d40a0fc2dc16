package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/joho/godotenv"

	"github.com/tinywideclouds/go-push-relay/internal/platform/apns"
	"github.com/tinywideclouds/go-push-relay/internal/platform/expo"
	"github.com/tinywideclouds/go-push-relay/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-relay/internal/storage/cache"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"

	"github.com/tinywideclouds/go-push-relay/relayservice"
	"github.com/tinywideclouds/go-push-relay/relayservice/config"

	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-relay")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to load .env file", "err", err)
	}

	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Gateway ---
	gateway, closeGateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("Gateway initialization failed", "provider", cfg.Gateway.Provider, "err", err)
		os.Exit(1)
	}
	defer closeGateway()
	logger.Info("Gateway initialized", "provider", cfg.Gateway.Provider)

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.IngestEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Ingestion consumer failed", "err", err)
			os.Exit(1)
		}
		logger.Info("Queue ingest enabled", "subscription", cfg.SubscriptionID)
	}

	// --- Service ---
	service, err := relayservice.New(cfg, gateway, consumer, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
		os.Exit(1)
	}
}

// newGateway builds the configured push gateway. FCM and APNs also get a
// receipt ledger, on Redis when enabled and in memory otherwise.
func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Gateway, func(), error) {
	noop := func() {}

	if cfg.Gateway.Provider == config.ProviderExpo {
		expoCfg := expo.Config{
			BaseURL:     cfg.Gateway.Expo.BaseURL,
			AccessToken: cfg.Gateway.Expo.AccessToken,
			Timeout:     cfg.Gateway.Expo.Timeout,
		}
		return expo.NewGateway(expoCfg, nil, logger), noop, nil
	}

	var cacheClient cache.CacheClient = cache.NewMemoryClient()
	closeCache := noop
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis receipt ledger...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cacheClient = redisClient
		closeCache = func() { _ = redisClient.Close() }
	}
	ledger := cache.NewReceiptLedger(cacheClient, cfg.LedgerTTL)

	switch cfg.Gateway.Provider {
	case config.ProviderFCM:
		var opts []option.ClientOption
		if cfg.Gateway.FCM.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Gateway.FCM.CredentialsFile))
		}
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Gateway.FCM.ProjectID}, opts...)
		if err != nil {
			closeCache()
			return nil, nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			closeCache()
			return nil, nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return fcm.NewGateway(fcmMessaging, ledger, logger), closeCache, nil

	case config.ProviderAPNS:
		keyContent, err := os.ReadFile(cfg.Gateway.APNS.KeyFile)
		if err != nil {
			closeCache()
			return nil, nil, fmt.Errorf("failed to read APNs key file: %w", err)
		}
		gw, err := apns.NewGateway(apns.Config{
			KeyID:        cfg.Gateway.APNS.KeyID,
			TeamID:       cfg.Gateway.APNS.TeamID,
			BundleID:     cfg.Gateway.APNS.BundleID,
			P8KeyContent: string(keyContent),
			Sandbox:      cfg.Gateway.APNS.Sandbox,
		}, ledger, logger)
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		return gw, closeCache, nil
	}

	closeCache()
	return nil, nil, fmt.Errorf("unknown gateway provider %q", cfg.Gateway.Provider)
}

// newIngestionConsumer attaches to the send-request subscription, creating it
// first when a topic is configured.
func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")

	if cfg.TopicID != "" {
		subConfig := &pubsubpb.Subscription{
			Name:                  sub,
			Topic:                 convertPubsub(cfg.ProjectID, cfg.TopicID, "topics"),
			AckDeadlineSeconds:    10,
			EnableMessageOrdering: false,
		}
		if cfg.SubscriptionDLQTopicID != "" {
			subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
				DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
				MaxDeliveryAttempts: 5,
			}
		}
		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
			} else {
				logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
				return nil, fmt.Errorf("could not create sub: %s", sub)
			}
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(sub), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
