package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/fallback"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

// Fetcher returns raw items for a query. *fallback.Chain implements it.
type Fetcher interface {
	Fetch(ctx context.Context, query string, maxResults int) (fallback.Result, error)
}

// AlertStore keeps scored alerts. *cache.Dedup implements it.
type AlertStore interface {
	Upsert(alert domain.ScoredAlert) bool
	Size() int
	Evictions() uint64
}

// Publisher forwards newly stored alerts to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, alerts []domain.ScoredAlert) error
}

// Report summarizes one ingestion pass.
type Report struct {
	Provider        string   `json:"provider"`
	Synthetic       bool     `json:"synthetic"`
	FailedProviders []string `json:"failed_providers,omitempty"`
	Fetched         int      `json:"fetched"`
	Inserted        int      `json:"inserted"`
	Updated         int      `json:"updated"`
	Irrelevant      int      `json:"irrelevant"`
	Skipped         int      `json:"skipped"`

	// Alerts holds every relevant alert from the pass, in fetch order.
	Alerts []domain.ScoredAlert `json:"-"`
}

// Ingestor runs fetched items through classification, location resolution
// and scoring, and stores the relevant ones.
type Ingestor struct {
	fetcher    Fetcher
	classifier domain.Classifier
	resolver   *domain.Resolver
	scorer     *domain.Scorer
	geocoder   domain.Geocoder
	store      AlertStore
	publisher  Publisher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// IngestorOption configures optional Ingestor collaborators.
type IngestorOption func(*Ingestor)

// WithGeocoder resolves location text the gazetteer does not know.
func WithGeocoder(g domain.Geocoder) IngestorOption {
	return func(i *Ingestor) { i.geocoder = g }
}

// WithPublisher forwards newly inserted alerts after each pass.
func WithPublisher(p Publisher) IngestorOption {
	return func(i *Ingestor) { i.publisher = p }
}

// NewIngestor creates an Ingestor with the given stages and observability.
func NewIngestor(
	fetcher Fetcher,
	classifier domain.Classifier,
	resolver *domain.Resolver,
	scorer *domain.Scorer,
	store AlertStore,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts ...IngestorOption,
) *Ingestor {
	i := &Ingestor{
		fetcher:    fetcher,
		classifier: classifier,
		resolver:   resolver,
		scorer:     scorer,
		store:      store,
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest fetches up to maxItems for query and processes them. The error is
// non-nil only when the fetch itself failed; per-item problems are counted.
func (i *Ingestor) Ingest(ctx context.Context, query string, maxItems int) (Report, error) {
	res, err := i.fetcher.Fetch(ctx, query, maxItems)
	if err != nil {
		return Report{FailedProviders: res.Failed}, err
	}
	i.metrics.ItemsFetched.WithLabelValues(res.Provider).Add(float64(len(res.Items)))
	if res.Synthetic {
		i.metrics.SyntheticFallback.Inc()
	}

	report, err := i.Process(ctx, res.Provider, res.Synthetic, res.Items)
	report.FailedProviders = res.Failed
	return report, err
}

// Process classifies, resolves, scores and stores items attributed to
// source. Only ctx cancellation stops it early.
func (i *Ingestor) Process(ctx context.Context, source string, synthetic bool, items []domain.RawItem) (Report, error) {
	report := Report{Provider: source, Synthetic: synthetic, Fetched: len(items)}
	evictionsBefore := i.store.Evictions()
	var fresh []domain.ScoredAlert

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		alert, err := i.Evaluate(ctx, source, synthetic, item)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			i.logger.Warn("skipping item", "source", source, "id", item.ID, "error", err)
			i.metrics.ItemsProcessed.WithLabelValues("skipped").Inc()
			report.Skipped++
			continue
		}
		if !alert.Relevant {
			i.metrics.ItemsProcessed.WithLabelValues("irrelevant").Inc()
			report.Irrelevant++
			continue
		}

		if i.store.Upsert(alert) {
			i.metrics.ItemsProcessed.WithLabelValues("inserted").Inc()
			report.Inserted++
			fresh = append(fresh, alert)
		} else {
			i.metrics.ItemsProcessed.WithLabelValues("updated").Inc()
			report.Updated++
		}
		report.Alerts = append(report.Alerts, alert)
	}

	i.metrics.CacheSize.Set(float64(i.store.Size()))
	if evicted := i.store.Evictions() - evictionsBefore; evicted > 0 {
		i.metrics.CacheEvictions.Add(float64(evicted))
	}

	if i.publisher != nil && len(fresh) > 0 {
		// The cache is the source of truth; a sink outage must not fail the pass.
		if err := i.publisher.Publish(ctx, fresh); err != nil {
			i.logger.Error("publish alerts failed", "count", len(fresh), "error", err)
		}
	}

	i.logger.Debug("items processed",
		"source", source,
		"fetched", report.Fetched,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"irrelevant", report.Irrelevant,
		"skipped", report.Skipped,
	)
	return report, nil
}

// Evaluate classifies and scores a single item without storing it.
// Irrelevant items come back with Relevant false and are still scored.
func (i *Ingestor) Evaluate(ctx context.Context, source string, synthetic bool, item domain.RawItem) (domain.ScoredAlert, error) {
	if err := item.Validate(); err != nil {
		return domain.ScoredAlert{}, err
	}
	cls, err := i.classifier.Classify(ctx, item.Text)
	if err != nil {
		return domain.ScoredAlert{}, err
	}

	coord, coordConf := i.locate(ctx, item)
	explicit := item.Coordinate != nil && item.Coordinate.Valid()
	priority := i.scorer.Score(item.Text, cls.Confidence, explicit, coordConf)

	return domain.BuildAlert(item, domain.AlertInput{
		Source:               source,
		Synthetic:            synthetic,
		Classification:       cls,
		Priority:             priority,
		Coordinate:           coord,
		CoordinateConfidence: coordConf,
	}), nil
}

// locate tries the explicit coordinate and location text first, then the
// item text, then the remote geocoder for location text the gazetteer missed.
func (i *Ingestor) locate(ctx context.Context, item domain.RawItem) (*domain.Coordinate, float64) {
	if coord, conf := i.resolver.Resolve(item.Location, item.Coordinate); coord != nil {
		return coord, conf
	}
	if coord, conf := i.resolver.Resolve(item.Text, nil); coord != nil {
		return coord, conf
	}
	location := strings.TrimSpace(item.Location)
	if i.geocoder == nil || location == "" {
		return nil, 0
	}

	match, err := i.geocoder.Locate(ctx, location)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			i.logger.Warn("geocoding failed", "location", location, "error", err)
		}
		return nil, 0
	}
	if match == nil || !match.Coordinate.Valid() {
		return nil, 0
	}
	coord := match.Coordinate
	// A geocoded place name is no stronger evidence than a gazetteer hit.
	conf := min(domain.Clamp01(match.Relevance), i.resolver.GazetteerConfidence())
	if conf == 0 {
		conf = i.resolver.GazetteerConfidence()
	}
	return &coord, conf
}
