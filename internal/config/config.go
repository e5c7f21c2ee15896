// Package config loads service settings from the environment and the scoring
// tables from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultStreamQuery is the disaster-topic query used by scheduled ticks.
const DefaultStreamQuery = "earthquake OR fire OR flood OR tornado OR hurricane OR wildfire OR emergency OR disaster OR evacuation OR rescue"

// Provider kinds accepted in PROVIDER_ORDER and runtime configuration.
const (
	ProviderOfficial     = "official"
	ProviderTwitterAPIIO = "twitterapi_io"
	ProviderReplay       = "replay"
	ProviderSynthetic    = "synthetic"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration

	// Streaming controller defaults.
	StreamIntervalSeconds int
	StreamMaxItems        int
	StreamAutostart       bool
	StreamQuery           string

	CacheMaxSize     int
	ClusterPrecision int

	// Provider chain.
	ProviderTimeout           time.Duration
	ProviderOrder             []string
	ProviderRequestsPerMinute int
	TwitterBearerToken        string
	TwitterOfficialEnabled    bool
	TwitterAPIIOKey           string
	TwitterAPIIOEnabled       bool
	ReplayFixturePath         string
	SyntheticSeed             uint64

	// Scoring tables file; empty means the embedded defaults.
	ScoringTablesPath string

	// Remote classification model; empty URL means keyword matching only.
	ClassifierURL     string
	ClassifierAPIKey  string
	ClassifierTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Kafka alert sink.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		StreamQuery:        envOrDefault("STREAM_QUERY", DefaultStreamQuery),
		ProviderOrder:      parseList(envOrDefault("PROVIDER_ORDER", "official,twitterapi_io,replay")),
		TwitterBearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterAPIIOKey:    os.Getenv("TWITTERAPI_IO_KEY"),
		ReplayFixturePath:  os.Getenv("REPLAY_FIXTURE_PATH"),
		ScoringTablesPath:  os.Getenv("SCORING_TABLES_PATH"),
		ClassifierURL:      os.Getenv("CLASSIFIER_URL"),
		ClassifierAPIKey:   os.Getenv("CLASSIFIER_API_KEY"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		KafkaBrokers:       parseList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic:    envOrDefault("KAFKA_ALERT_TOPIC", "disaster-alerts"),
	}

	var err error
	cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s")
	collect(err)
	cfg.ProviderTimeout, err = parseDuration("PROVIDER_TIMEOUT", "10s")
	collect(err)
	cfg.ClassifierTimeout, err = parseDuration("CLASSIFIER_TIMEOUT", "5s")
	collect(err)
	cfg.MapboxTimeout, err = parseDuration("MAPBOX_TIMEOUT", "5s")
	collect(err)

	cfg.StreamIntervalSeconds, err = parseInt("STREAM_INTERVAL_SECONDS", 30, 1, 86400)
	collect(err)
	cfg.StreamMaxItems, err = parseInt("STREAM_MAX_ITEMS", 20, 1, 100)
	collect(err)
	cfg.CacheMaxSize, err = parseInt("CACHE_MAX_SIZE", 100, 1, 1_000_000)
	collect(err)
	cfg.ClusterPrecision, err = parseInt("CLUSTER_PRECISION", 3, 0, 8)
	collect(err)
	cfg.ProviderRequestsPerMinute, err = parseInt("PROVIDER_REQUESTS_PER_MINUTE", 0, 0, 10_000)
	collect(err)
	cfg.MapboxCacheSize, err = parseInt("MAPBOX_CACHE_SIZE", 1000, 1, 1_000_000)
	collect(err)

	cfg.StreamAutostart, err = parseBool("STREAM_AUTOSTART", true)
	collect(err)
	cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false)
	collect(err)
	// A credential switches its provider on unless explicitly disabled.
	cfg.TwitterOfficialEnabled, err = parseBool("TWITTER_OFFICIAL_ENABLED", cfg.TwitterBearerToken != "")
	collect(err)
	cfg.TwitterAPIIOEnabled, err = parseBool("TWITTERAPI_IO_ENABLED", cfg.TwitterAPIIOKey != "")
	collect(err)
	cfg.MapboxEnabled, err = parseBool("MAPBOX_ENABLED", cfg.MapboxToken != "")
	collect(err)

	if s := os.Getenv("SYNTHETIC_SEED"); s != "" {
		seed, perr := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if perr != nil {
			collect(errors.New("invalid SYNTHETIC_SEED: must be an unsigned integer"))
		}
		cfg.SyntheticSeed = seed
	} else {
		cfg.SyntheticSeed = uint64(time.Now().UnixNano())
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, kind := range c.ProviderOrder {
		switch kind {
		case ProviderOfficial, ProviderTwitterAPIIO, ProviderReplay:
		case ProviderSynthetic:
			return errors.New("invalid PROVIDER_ORDER: synthetic is always last and must not be listed")
		default:
			return fmt.Errorf("invalid PROVIDER_ORDER: unknown provider %q", kind)
		}
	}
	if c.TwitterOfficialEnabled && c.TwitterBearerToken == "" {
		return errors.New("TWITTER_OFFICIAL_ENABLED is true but TWITTER_BEARER_TOKEN is not set")
	}
	if c.TwitterAPIIOEnabled && c.TwitterAPIIOKey == "" {
		return errors.New("TWITTERAPI_IO_ENABLED is true but TWITTERAPI_IO_KEY is not set")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}
