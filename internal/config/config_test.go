package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30, cfg.StreamIntervalSeconds)
	assert.Equal(t, 20, cfg.StreamMaxItems)
	assert.True(t, cfg.StreamAutostart)
	assert.Equal(t, DefaultStreamQuery, cfg.StreamQuery)
	assert.Equal(t, 100, cfg.CacheMaxSize)
	assert.Equal(t, 3, cfg.ClusterPrecision)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{ProviderOfficial, ProviderTwitterAPIIO, ProviderReplay}, cfg.ProviderOrder)
	assert.Zero(t, cfg.ProviderRequestsPerMinute)
	assert.False(t, cfg.TwitterOfficialEnabled)
	assert.False(t, cfg.TwitterAPIIOEnabled)
	assert.Empty(t, cfg.ScoringTablesPath)
	assert.Empty(t, cfg.ClassifierURL)
	assert.Equal(t, 5*time.Second, cfg.ClassifierTimeout)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "disaster-alerts", cfg.KafkaAlertTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://map.example.org, https://list.example.org")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("STREAM_INTERVAL_SECONDS", "5")
	t.Setenv("STREAM_MAX_ITEMS", "50")
	t.Setenv("STREAM_AUTOSTART", "false")
	t.Setenv("STREAM_QUERY", "flood")
	t.Setenv("CACHE_MAX_SIZE", "500")
	t.Setenv("CLUSTER_PRECISION", "2")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("PROVIDER_ORDER", "twitterapi_io, official")
	t.Setenv("PROVIDER_REQUESTS_PER_MINUTE", "15")
	t.Setenv("TWITTER_BEARER_TOKEN", "bearer")
	t.Setenv("TWITTERAPI_IO_KEY", "key")
	t.Setenv("SYNTHETIC_SEED", "42")
	t.Setenv("SCORING_TABLES_PATH", "/etc/feed/tables.yaml")
	t.Setenv("CLASSIFIER_URL", "http://model:8000")
	t.Setenv("CLASSIFIER_TIMEOUT", "2s")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_ALERT_TOPIC", "alerts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://map.example.org", "https://list.example.org"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5, cfg.StreamIntervalSeconds)
	assert.Equal(t, 50, cfg.StreamMaxItems)
	assert.False(t, cfg.StreamAutostart)
	assert.Equal(t, "flood", cfg.StreamQuery)
	assert.Equal(t, 500, cfg.CacheMaxSize)
	assert.Equal(t, 2, cfg.ClusterPrecision)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{ProviderTwitterAPIIO, ProviderOfficial}, cfg.ProviderOrder)
	assert.Equal(t, 15, cfg.ProviderRequestsPerMinute)
	assert.True(t, cfg.TwitterOfficialEnabled)
	assert.True(t, cfg.TwitterAPIIOEnabled)
	assert.Equal(t, uint64(42), cfg.SyntheticSeed)
	assert.Equal(t, "/etc/feed/tables.yaml", cfg.ScoringTablesPath)
	assert.Equal(t, "http://model:8000", cfg.ClassifierURL)
	assert.Equal(t, 2*time.Second, cfg.ClassifierTimeout)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaAlertTopic)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"PROVIDER_TIMEOUT", "0s"},
		{"CLASSIFIER_TIMEOUT", "bad"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"STREAM_INTERVAL_SECONDS", "0"},
		{"STREAM_MAX_ITEMS", "101"},
		{"CACHE_MAX_SIZE", "zero"},
		{"CLUSTER_PRECISION", "9"},
		{"PROVIDER_REQUESTS_PER_MINUTE", "-1"},
		{"STREAM_AUTOSTART", "maybe"},
		{"KAFKA_ENABLED", "yes please"},
		{"SYNTHETIC_SEED", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_ReportsEveryInvalidVariable(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "bad")
	t.Setenv("STREAM_MAX_ITEMS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
	assert.Contains(t, err.Error(), "STREAM_MAX_ITEMS")
}

func TestLoad_ProviderOrder(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("PROVIDER_ORDER", "official,carrier-pigeon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})
	t.Run("synthetic listed", func(t *testing.T) {
		t.Setenv("PROVIDER_ORDER", "replay,synthetic")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "synthetic")
	})
}

func TestLoad_ProviderEnabledWithoutCredential(t *testing.T) {
	tests := []struct {
		enable, want string
	}{
		{"TWITTER_OFFICIAL_ENABLED", "TWITTER_BEARER_TOKEN"},
		{"TWITTERAPI_IO_ENABLED", "TWITTERAPI_IO_KEY"},
		{"MAPBOX_ENABLED", "MAPBOX_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.enable, func(t *testing.T) {
			t.Setenv(tt.enable, "true")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_CredentialImpliesEnabled(t *testing.T) {
	t.Setenv("TWITTER_BEARER_TOKEN", "bearer")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TwitterOfficialEnabled)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_ExplicitlyDisabled(t *testing.T) {
	t.Setenv("TWITTER_BEARER_TOKEN", "bearer")
	t.Setenv("TWITTER_OFFICIAL_ENABLED", "false")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.TwitterOfficialEnabled)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_BlankValueFallsBackToDefault(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_ALERT_TOPIC", " ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "disaster-alerts", cfg.KafkaAlertTopic)
}
