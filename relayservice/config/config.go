package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	ProviderExpo = "expo"
	ProviderFCM  = "fcm"
	ProviderAPNS = "apns"

	DefaultListenAddr  = ":3000"
	DefaultSettleDelay = 1500 * time.Millisecond
	DefaultExpoBaseURL = "https://exp.host/--/api/v2"
	DefaultExpoTimeout = 10 * time.Second
	DefaultLedgerTTL   = 24 * time.Hour
)

type ExpoConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
}

type APNSConfig struct {
	KeyID    string
	TeamID   string
	BundleID string
	KeyFile  string
	Sandbox  bool
}

type GatewayConfig struct {
	Provider string
	Expo     ExpoConfig
	FCM      FCMConfig
	APNS     APNSConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ListenAddr  string
	SettleDelay time.Duration
	Gateway     GatewayConfig
	LedgerTTL   time.Duration

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig

	// Queue ingest is enabled when SubscriptionID is set.
	ProjectID              string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// IngestEnabled reports whether send requests are also consumed from Pub/Sub.
func (c *Config) IngestEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SETTLE_DELAY"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid SETTLE_DELAY %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "SETTLE_DELAY", "source", "env")
		cfg.SettleDelay = d
	}
	if val := os.Getenv("LEDGER_TTL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid LEDGER_TTL %q: %w", val, err)
		}
		cfg.LedgerTTL = d
	}

	// Gateway Overrides
	if val := os.Getenv("GATEWAY_PROVIDER"); val != "" {
		logger.Debug("Overriding config value", "key", "GATEWAY_PROVIDER", "source", "env")
		cfg.Gateway.Provider = val
	}
	if val := os.Getenv("EXPO_BASE_URL"); val != "" {
		cfg.Gateway.Expo.BaseURL = val
	}
	if val := os.Getenv("EXPO_ACCESS_TOKEN"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_ACCESS_TOKEN", "source", "env")
		cfg.Gateway.Expo.AccessToken = val
	}
	if val := os.Getenv("EXPO_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid EXPO_TIMEOUT %q: %w", val, err)
		}
		cfg.Gateway.Expo.Timeout = d
	}
	if val := os.Getenv("FCM_PROJECT_ID"); val != "" {
		cfg.Gateway.FCM.ProjectID = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		cfg.Gateway.FCM.CredentialsFile = val
	}
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.Gateway.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.Gateway.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.Gateway.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_KEY_FILE"); val != "" {
		cfg.Gateway.APNS.KeyFile = val
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		sandbox, _ := strconv.ParseBool(val)
		cfg.Gateway.APNS.Sandbox = sandbox
	}

	// Ingest Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LedgerTTL <= 0 {
		cfg.LedgerTTL = DefaultLedgerTTL
	}
	cfg.Gateway.Provider = strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider))
	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = ProviderExpo
	}
	if cfg.Gateway.Expo.BaseURL == "" {
		cfg.Gateway.Expo.BaseURL = DefaultExpoBaseURL
	}
	if cfg.Gateway.Expo.Timeout <= 0 {
		cfg.Gateway.Expo.Timeout = DefaultExpoTimeout
	}
	if cfg.Gateway.FCM.ProjectID == "" {
		cfg.Gateway.FCM.ProjectID = cfg.ProjectID
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	// 3. Final Validation
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle_delay must not be negative, got %s", cfg.SettleDelay)
	}
	switch cfg.Gateway.Provider {
	case ProviderExpo:
	case ProviderFCM:
		if cfg.Gateway.FCM.ProjectID == "" {
			return nil, fmt.Errorf("gateway.fcm.project_id is required for the fcm provider (set via YAML or FCM_PROJECT_ID env var)")
		}
	case ProviderAPNS:
		a := cfg.Gateway.APNS
		if a.KeyID == "" || a.TeamID == "" || a.BundleID == "" || a.KeyFile == "" {
			return nil, fmt.Errorf("apns provider requires key_id, team_id, bundle_id and key_file")
		}
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Gateway.Provider)
	}
	if cfg.IngestEnabled() && cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required when subscription_id is set (set via YAML or PROJECT_ID env var)")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
