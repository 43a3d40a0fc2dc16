package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlExpoConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	Timeout     string `yaml:"timeout"`
}

type YamlFCMConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	KeyFile  string `yaml:"key_file"`
	Sandbox  bool   `yaml:"sandbox"`
}

type YamlGatewayConfig struct {
	Provider string         `yaml:"provider"`
	Expo     YamlExpoConfig `yaml:"expo"`
	FCM      YamlFCMConfig  `yaml:"fcm"`
	APNS     YamlAPNSConfig `yaml:"apns"`
}

type YamlLedgerConfig struct {
	TTL string `yaml:"ttl"`
}

type YamlIngestConfig struct {
	ProjectID      string `yaml:"project_id"`
	TopicID        string `yaml:"topic_id"`
	SubscriptionID string `yaml:"subscription_id"`
	DLQTopicID     string `yaml:"dlq_topic_id"`
	NumWorkers     int    `yaml:"num_workers"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ListenAddr  string            `yaml:"listen_addr"`
	SettleDelay string            `yaml:"settle_delay"`
	Gateway     YamlGatewayConfig `yaml:"gateway"`
	Ledger      YamlLedgerConfig  `yaml:"ledger"`
	CorsConfig  YamlCorsConfig    `yaml:"cors"`
	RedisConfig YamlRedisConfig   `yaml:"redis"`
	Ingest      YamlIngestConfig  `yaml:"ingest"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// An absent settle_delay means the default; "0s" disables the delay.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	settleDelay, err := parseDuration("settle_delay", baseCfg.SettleDelay, DefaultSettleDelay)
	if err != nil {
		return nil, err
	}
	expoTimeout, err := parseDuration("gateway.expo.timeout", baseCfg.Gateway.Expo.Timeout, 0)
	if err != nil {
		return nil, err
	}
	ledgerTTL, err := parseDuration("ledger.ttl", baseCfg.Ledger.TTL, 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:  baseCfg.ListenAddr,
		SettleDelay: settleDelay,
		Gateway: GatewayConfig{
			Provider: baseCfg.Gateway.Provider,
			Expo: ExpoConfig{
				BaseURL:     baseCfg.Gateway.Expo.BaseURL,
				AccessToken: baseCfg.Gateway.Expo.AccessToken,
				Timeout:     expoTimeout,
			},
			FCM: FCMConfig{
				ProjectID:       baseCfg.Gateway.FCM.ProjectID,
				CredentialsFile: baseCfg.Gateway.FCM.CredentialsFile,
			},
			APNS: APNSConfig{
				KeyID:    baseCfg.Gateway.APNS.KeyID,
				TeamID:   baseCfg.Gateway.APNS.TeamID,
				BundleID: baseCfg.Gateway.APNS.BundleID,
				KeyFile:  baseCfg.Gateway.APNS.KeyFile,
				Sandbox:  baseCfg.Gateway.APNS.Sandbox,
			},
		},
		LedgerTTL: ledgerTTL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		ProjectID:              baseCfg.Ingest.ProjectID,
		TopicID:                baseCfg.Ingest.TopicID,
		SubscriptionID:         baseCfg.Ingest.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.Ingest.DLQTopicID,
		NumPipelineWorkers:     baseCfg.Ingest.NumWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"listen_addr", cfg.ListenAddr,
		"provider", cfg.Gateway.Provider,
		"settle_delay", cfg.SettleDelay,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
