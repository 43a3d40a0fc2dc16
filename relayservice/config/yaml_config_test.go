package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-push-relay/relayservice/config"
	"gopkg.in/yaml.v3"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		raw := `
listen_addr: ":9000"
settle_delay: "2s"
gateway:
  provider: apns
  expo:
    base_url: "http://expo.local"
    access_token: "yaml-token"
    timeout: "5s"
  fcm:
    project_id: "fcm-project"
    credentials_file: "/secrets/sa.json"
  apns:
    key_id: "KEY"
    team_id: "TEAM"
    bundle_id: "com.test.app"
    key_file: "/secrets/key.p8"
    sandbox: true
ledger:
  ttl: "12h"
cors:
  allowed_origins: ["http://yaml.com"]
  role: "editor"
redis:
  enabled: true
  addr: "redis:6379"
  db: 2
ingest:
  project_id: "yaml-project"
  topic_id: "yaml-topic"
  subscription_id: "yaml-subscription"
  dlq_topic_id: "yaml-dlq"
  num_workers: 5
`
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(raw), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, 2*time.Second, cfg.SettleDelay)
		assert.Equal(t, 12*time.Hour, cfg.LedgerTTL)
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		// 2. Gateway
		assert.Equal(t, "apns", cfg.Gateway.Provider)
		assert.Equal(t, "http://expo.local", cfg.Gateway.Expo.BaseURL)
		assert.Equal(t, 5*time.Second, cfg.Gateway.Expo.Timeout)
		assert.Equal(t, "/secrets/sa.json", cfg.Gateway.FCM.CredentialsFile)
		assert.Equal(t, config.APNSConfig{
			KeyID: "KEY", TeamID: "TEAM", BundleID: "com.test.app", KeyFile: "/secrets/key.p8", Sandbox: true,
		}, cfg.Gateway.APNS)

		// 3. CORS and Redis
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)
		assert.Equal(t, config.RedisConfig{Enabled: true, Addr: "redis:6379", DB: 2}, cfg.Redis)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Absent settle delay uses the default", func(t *testing.T) {
		cfg, err := config.NewConfigFromYaml(&config.YamlConfig{}, logger)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultSettleDelay, cfg.SettleDelay)
		assert.Nil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Failure - Malformed duration", func(t *testing.T) {
		_, err := config.NewConfigFromYaml(&config.YamlConfig{SettleDelay: "later"}, logger)
		assert.ErrorContains(t, err, "settle_delay")
	})
}
