package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-feed-service/internal/adapter/classifier"
	httpadapter "github.com/couchcryptid/disaster-feed-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-feed-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-feed-service/internal/adapter/mapbox"
	"github.com/couchcryptid/disaster-feed-service/internal/adapter/synthetic"
	"github.com/couchcryptid/disaster-feed-service/internal/cache"
	"github.com/couchcryptid/disaster-feed-service/internal/config"
	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/fallback"
	"github.com/couchcryptid/disaster-feed-service/internal/feed"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
	"github.com/couchcryptid/disaster-feed-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	tables, err := config.LoadTables(cfg.ScoringTablesPath)
	if err != nil {
		return err
	}

	// Provider chain: configured providers first, synthetic always last.
	build := feed.NewProviderBuilder(cfg.ProviderTimeout, logger)
	initial := feed.ProviderConfigs(cfg)
	providers := make([]domain.Provider, 0, len(initial))
	for _, pc := range initial {
		p, err := build(pc)
		if err != nil {
			return err
		}
		providers = append(providers, p)
	}
	chain := fallback.New(providers, synthetic.New(cfg.SyntheticSeed, clockwork.NewRealClock()),
		fallback.Options{
			Timeout:           cfg.ProviderTimeout,
			RequestsPerMinute: cfg.ProviderRequestsPerMinute,
		}, logger, metrics)
	logger.Info("provider chain ready", "providers", chain.Names())

	keywords := domain.NewKeywordClassifier(tables.Classifier.Keywords)
	var classify domain.Classifier = classifier.WithFallback(nil, keywords, logger, metrics)
	if cfg.ClassifierURL != "" {
		model := classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.ClassifierTimeout)
		classify = classifier.WithFallback(model, keywords, logger, metrics)
		logger.Info("remote classifier enabled", "url", cfg.ClassifierURL, "timeout", cfg.ClassifierTimeout)
	}

	store := cache.NewDedup(cfg.CacheMaxSize)
	opts := []pipeline.IngestorOption{}

	// Geocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		opts = append(opts, pipeline.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("kafka alert sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	}

	ingestor := pipeline.NewIngestor(chain, classify,
		domain.NewResolver(tables.ResolverPolicy(), tables.Places()),
		domain.NewScorer(tables.ScoringPolicy()),
		store, logger, metrics, opts...)

	controller := pipeline.NewController(ingestor, pipeline.ControllerOptions{
		IntervalSeconds: cfg.StreamIntervalSeconds,
		MaxItems:        cfg.StreamMaxItems,
		Query:           cfg.StreamQuery,
	}, logger, metrics)

	svc := feed.NewService(ingestor, controller, store, chain, build, initial,
		feed.Options{ClusterPrecision: cfg.ClusterPrecision}, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc,
		httpadapter.Options{AllowedOrigins: cfg.CORSAllowedOrigins}, metrics, logger)

	if cfg.StreamAutostart {
		controller.Start(cfg.StreamIntervalSeconds, cfg.StreamMaxItems)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if err := controller.Shutdown(shutdownCtx); err != nil {
			logger.Error("streaming controller shutdown error", "error", err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}
