package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/feed"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
	"github.com/couchcryptid/disaster-feed-service/internal/pipeline"
)

// Feed is the set of feed operations the API exposes. *feed.Service implements it.
type Feed interface {
	StartStreaming(intervalSeconds, maxItems int) pipeline.Status
	StopStreaming() pipeline.Status
	StreamStatus() pipeline.Status
	CheckReadiness(ctx context.Context) error
	LiveAlerts(limit int, minPriority float64) []domain.ScoredAlert
	TopPriority(limit int) []domain.ScoredAlert
	Search(ctx context.Context, query string, maxResults int) (feed.SearchResult, error)
	Ingest(ctx context.Context, source string, items []domain.RawItem) (pipeline.Report, error)
	Predict(ctx context.Context, text string) (feed.Prediction, error)
	PredictBatch(ctx context.Context, texts []string) ([]feed.Prediction, error)
	ConfigureProviders(configs []feed.ProviderConfig, replace bool) ([]string, error)
	ProviderConfigs() []feed.ProviderConfig
	Health() feed.HealthReport
	Clusters(precision int) feed.ClusterView
	DefaultClusterPrecision() int
	Stats() feed.Stats
}

// Server exposes the feed API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Options configures cross-cutting HTTP behavior.
type Options struct {
	AllowedOrigins []string
}

// NewServer creates an HTTP server with the /api/v1 routes and /healthz,
// /readyz, and /metrics.
func NewServer(addr string, f Feed, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{logger: logger}
	h := &handler{feed: f, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(instrument(metrics, logger))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(f))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/streaming", func(r chi.Router) {
			r.Post("/start", h.startStreaming)
			r.Post("/stop", h.stopStreaming)
			r.Get("/status", h.streamStatus)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/live", h.liveAlerts)
			r.Get("/top", h.topPriority)
			r.Get("/search", h.search)
			r.Post("/ingest", h.ingest)
		})
		r.Get("/providers", h.providers)
		r.Put("/providers", h.configureProviders)
		r.Get("/health", h.health)
		r.Get("/clusters", h.clusters)
		r.Get("/stats", h.stats)
		r.Post("/predict", h.predict)
		r.Post("/predict/batch", h.predictBatch)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second, // on-demand search waits on providers
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(f Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := f.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
