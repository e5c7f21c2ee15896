// Package feed exposes the alert feed operations: streaming control, live
// and ranked alert views, on-demand search, provider reconfiguration, health,
// clusters and statistics.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/fallback"
	"github.com/couchcryptid/disaster-feed-service/internal/pipeline"
)

// MaxBatch bounds search sizes, manual ingest and batch prediction.
const MaxBatch = 100

// Chain is the provider chain as the feed sees it. *fallback.Chain implements it.
type Chain interface {
	Replace(providers []domain.Provider)
	Names() []string
	Health() []fallback.ProviderHealth
}

// Store is the alert cache as the feed sees it. *cache.Dedup implements it.
type Store interface {
	Snapshot(limit int) []domain.ScoredAlert
	Size() int
	Capacity() int
}

// Streamer drives scheduled ingestion. *pipeline.Controller implements it.
type Streamer interface {
	Start(intervalSeconds, maxItems int) pipeline.Status
	Stop() pipeline.Status
	Status() pipeline.Status
	CheckReadiness(ctx context.Context) error
}

// Ingester runs items through the alert pipeline. *pipeline.Ingestor implements it.
type Ingester interface {
	Ingest(ctx context.Context, query string, maxItems int) (pipeline.Report, error)
	Process(ctx context.Context, source string, synthetic bool, items []domain.RawItem) (pipeline.Report, error)
	Evaluate(ctx context.Context, source string, synthetic bool, item domain.RawItem) (domain.ScoredAlert, error)
}

// Options carries the defaults the service falls back to.
type Options struct {
	ClusterPrecision int
}

// Service implements the feed operations over the pipeline, cache and chain.
type Service struct {
	ingester  Ingester
	streamer  Streamer
	store     Store
	chain     Chain
	build     ProviderBuilder
	precision int
	logger    *slog.Logger

	// configMu serializes reconfiguration; configs mirrors the chain.
	configMu sync.Mutex
	configs  []ProviderConfig
	built    map[string]builtProvider
}

// builtProvider remembers the config an instance came from, so an unchanged
// config keeps its instance and the chain keeps its breaker.
type builtProvider struct {
	config   ProviderConfig
	provider domain.Provider
}

// NewService wires the feed. initial is the provider configuration the chain
// was built from.
func NewService(
	ingester Ingester,
	streamer Streamer,
	store Store,
	chain Chain,
	build ProviderBuilder,
	initial []ProviderConfig,
	opts Options,
	logger *slog.Logger,
) *Service {
	return &Service{
		ingester:  ingester,
		streamer:  streamer,
		store:     store,
		chain:     chain,
		build:     build,
		precision: opts.ClusterPrecision,
		logger:    logger,
		configs:   append([]ProviderConfig(nil), initial...),
		built:     make(map[string]builtProvider),
	}
}

// StartStreaming starts the controller or updates its schedule.
func (s *Service) StartStreaming(intervalSeconds, maxItems int) pipeline.Status {
	return s.streamer.Start(intervalSeconds, maxItems)
}

// StopStreaming stops the controller.
func (s *Service) StopStreaming() pipeline.Status {
	return s.streamer.Stop()
}

// StreamStatus returns the controller state.
func (s *Service) StreamStatus() pipeline.Status {
	return s.streamer.Status()
}

// CheckReadiness reports whether the feed is serving healthy data.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.streamer.CheckReadiness(ctx)
}

// LiveAlerts returns cached alerts most recent first, keeping those with a
// priority of at least minPriority, truncated to limit (limit <= 0 means all).
func (s *Service) LiveAlerts(limit int, minPriority float64) []domain.ScoredAlert {
	if minPriority <= 0 {
		return s.store.Snapshot(limit)
	}
	all := s.store.Snapshot(0)
	out := all[:0]
	for _, a := range all {
		if a.Priority >= minPriority {
			out = append(out, a)
		}
	}
	return truncate(out, limit)
}

// TopPriority returns cached alerts by priority, highest first. Equal
// priorities keep recency order.
func (s *Service) TopPriority(limit int) []domain.ScoredAlert {
	alerts := s.store.Snapshot(0)
	slices.SortStableFunc(alerts, func(a, b domain.ScoredAlert) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		default:
			return 0
		}
	})
	return truncate(alerts, limit)
}

// SearchResult is the outcome of an on-demand search.
type SearchResult struct {
	Query  string               `json:"query"`
	Report pipeline.Report      `json:"report"`
	Alerts []domain.ScoredAlert `json:"alerts"`
}

// Search runs the full pipeline for query outside the schedule. Relevant
// results are stored in the cache as well as returned.
func (s *Service) Search(ctx context.Context, query string, maxResults int) (SearchResult, error) {
	maxResults = min(max(maxResults, 1), MaxBatch)
	report, err := s.ingester.Ingest(ctx, query, maxResults)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search %q: %w", query, err)
	}
	alerts := report.Alerts
	if alerts == nil {
		alerts = []domain.ScoredAlert{}
	}
	report.Alerts = nil
	return SearchResult{Query: query, Report: report, Alerts: alerts}, nil
}

// Ingest processes externally supplied items as if a provider had returned them.
func (s *Service) Ingest(ctx context.Context, source string, items []domain.RawItem) (pipeline.Report, error) {
	if source == "" {
		source = "manual"
	}
	report, err := s.ingester.Process(ctx, source, false, items)
	report.Alerts = nil
	return report, err
}

// Prediction is the classifier verdict and priority for a single text.
type Prediction struct {
	Text       string  `json:"text"`
	IsDisaster bool    `json:"is_disaster"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Priority   float64 `json:"priority_score"`
}

// Predict classifies and scores text without storing it.
func (s *Service) Predict(ctx context.Context, text string) (Prediction, error) {
	a, err := s.ingester.Evaluate(ctx, "predict", false, domain.RawItem{Text: text})
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Text:       text,
		IsDisaster: a.Relevant,
		Confidence: a.Confidence,
		Method:     a.Method,
		Priority:   a.Priority,
	}, nil
}

// PredictBatch runs Predict over texts in order, stopping at the first error.
func (s *Service) PredictBatch(ctx context.Context, texts []string) ([]Prediction, error) {
	out := make([]Prediction, 0, len(texts))
	for i, text := range texts {
		p, err := s.Predict(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("texts[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ConfigureProviders validates configs and rebuilds the provider chain. With
// replace the list becomes the whole chain; otherwise entries are merged into
// the current list by kind. On any error the previous chain stays in place.
// The synthetic provider is always the terminal link, so synthetic entries
// are accepted but never added.
func (s *Service) ConfigureProviders(configs []ProviderConfig, replace bool) ([]string, error) {
	configs = append([]ProviderConfig(nil), configs...)
	if err := validateConfigs(configs); err != nil {
		return nil, err
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	next := configs
	if !replace {
		next = mergeConfigs(s.configs, configs)
	}

	providers := make([]domain.Provider, 0, len(next))
	built := make(map[string]builtProvider, len(next))
	for _, pc := range next {
		if pc.Disabled || pc.Kind == "synthetic" {
			continue
		}
		if prev, ok := s.built[pc.Kind]; ok && prev.config == pc {
			built[pc.Kind] = prev
			providers = append(providers, prev.provider)
			continue
		}
		p, err := s.build(pc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrConfiguration, pc.Kind, err)
		}
		built[pc.Kind] = builtProvider{config: pc, provider: p}
		providers = append(providers, p)
	}

	s.chain.Replace(providers)
	s.configs = next
	s.built = built
	names := s.chain.Names()
	s.logger.Info("providers configured", "providers", names, "replace", replace)
	return names, nil
}

// ProviderConfigs returns the current configuration with credentials masked.
func (s *Service) ProviderConfigs() []ProviderConfig {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	out := make([]ProviderConfig, len(s.configs))
	for i, pc := range s.configs {
		pc.BearerToken = mask(pc.BearerToken)
		pc.APIKey = mask(pc.APIKey)
		out[i] = pc
	}
	return out
}

// HealthReport combines stream state, provider health and cache usage.
type HealthReport struct {
	Status    string                    `json:"status"`
	Stream    pipeline.Status           `json:"stream"`
	Providers []fallback.ProviderHealth `json:"providers"`
	Cache     CacheUsage                `json:"cache"`
}

// CacheUsage reports how full the alert cache is.
type CacheUsage struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// Health reports "degraded" when the stream is degraded or a provider needs
// operator action, and "ok" otherwise.
func (s *Service) Health() HealthReport {
	stream := s.streamer.Status()
	providers := s.chain.Health()
	status := "ok"
	if stream.State == pipeline.StateDegraded {
		status = "degraded"
	}
	for _, p := range providers {
		if p.OperatorActionRequired {
			status = "degraded"
		}
	}
	return HealthReport{
		Status:    status,
		Stream:    stream,
		Providers: providers,
		Cache:     CacheUsage{Size: s.store.Size(), Capacity: s.store.Capacity()},
	}
}

// ClusterView is the cluster aggregation over the current cache.
type ClusterView struct {
	Precision   int                      `json:"precision"`
	Clusters    []domain.LocationCluster `json:"clusters"`
	Unplottable int                      `json:"unplottable"`
}

// DefaultClusterPrecision is the precision used when the caller gives none.
func (s *Service) DefaultClusterPrecision() int {
	return s.precision
}

// Clusters groups the cached alerts by coordinate rounded to precision.
func (s *Service) Clusters(precision int) ClusterView {
	alerts := s.store.Snapshot(0)
	unplottable := 0
	for _, a := range alerts {
		if a.Coordinate == nil {
			unplottable++
		}
	}
	clusters := domain.Cluster(alerts, precision)
	if clusters == nil {
		clusters = []domain.LocationCluster{}
	}
	return ClusterView{
		Precision:   domain.ClampPrecision(precision),
		Clusters:    clusters,
		Unplottable: unplottable,
	}
}

func truncate(alerts []domain.ScoredAlert, limit int) []domain.ScoredAlert {
	if limit > 0 && len(alerts) > limit {
		return alerts[:limit]
	}
	return alerts
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
