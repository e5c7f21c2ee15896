package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/feed"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type handler struct {
	feed   Feed
	logger *slog.Logger
}

type startRequest struct {
	IntervalSeconds int `json:"interval_seconds" validate:"omitempty,min=1,max=86400"`
	MaxItems        int `json:"max_items" validate:"omitempty,min=1,max=100"`
}

type alertsQuery struct {
	Limit       int     `validate:"min=1,max=100"`
	MinPriority float64 `validate:"min=0,max=1"`
}

type searchQuery struct {
	Query      string `validate:"required,max=512"`
	MaxResults int    `validate:"min=1,max=100"`
}

type ingestRequest struct {
	Source string           `json:"source" validate:"omitempty,max=64,excludesall=:"`
	Items  []domain.RawItem `json:"items" validate:"required,min=1,max=100"`
}

type providersRequest struct {
	Providers []feed.ProviderConfig `json:"providers" validate:"required,min=1"`
	Replace   bool                  `json:"replace"`
}

type predictRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type predictBatchRequest struct {
	Texts []string `json:"texts" validate:"required,min=1,max=100,dive,required,max=2000"`
}

type alertsResponse struct {
	Count  int                  `json:"count"`
	Alerts []domain.ScoredAlert `json:"alerts"`
}

func (h *handler) startStreaming(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.feed.StartStreaming(req.IntervalSeconds, req.MaxItems))
}

func (h *handler) stopStreaming(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.StopStreaming())
}

func (h *handler) streamStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.StreamStatus())
}

func (h *handler) liveAlerts(w http.ResponseWriter, r *http.Request) {
	q := alertsQuery{Limit: 50}
	var err error
	if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
		h.badRequest(w, err)
		return
	}
	if q.MinPriority, err = floatParam(r, "min_priority", 0); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := validate.Struct(q); err != nil {
		h.badRequest(w, describe(err))
		return
	}
	writeAlerts(w, h.feed.LiveAlerts(q.Limit, q.MinPriority))
}

func (h *handler) topPriority(w http.ResponseWriter, r *http.Request) {
	q := alertsQuery{Limit: 10}
	var err error
	if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := validate.Struct(q); err != nil {
		h.badRequest(w, describe(err))
		return
	}
	writeAlerts(w, h.feed.TopPriority(q.Limit))
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	q := searchQuery{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	var err error
	if q.MaxResults, err = intParam(r, "max_results", 10); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := validate.Struct(q); err != nil {
		h.badRequest(w, describe(err))
		return
	}
	res, err := h.feed.Search(r.Context(), q.Query, q.MaxResults)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.feed.Ingest(r.Context(), req.Source, req.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.feed.ProviderConfigs()})
}

func (h *handler) configureProviders(w http.ResponseWriter, r *http.Request) {
	var req providersRequest
	if !h.decode(w, r, &req) {
		return
	}
	names, err := h.feed.ConfigureProviders(req.Providers, req.Replace)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": names})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.Health())
}

func (h *handler) clusters(w http.ResponseWriter, r *http.Request) {
	precision, err := intParam(r, "precision", h.feed.DefaultClusterPrecision())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	if err := validate.Var(precision, "min=0,max=8"); err != nil {
		h.badRequest(w, errors.New("precision must be between 0 and 8"))
		return
	}
	writeJSON(w, http.StatusOK, h.feed.Clusters(precision))
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.Stats())
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.feed.Predict(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) predictBatch(w http.ResponseWriter, r *http.Request) {
	var req predictBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	preds, err := h.feed.PredictBatch(r.Context(), req.Texts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
}

// decode reads and validates a required JSON body.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.badRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return h.check(w, dst)
}

func (h *handler) check(w http.ResponseWriter, v any) bool {
	if err := validate.Struct(v); err != nil {
		h.badRequest(w, describe(err))
		return false
	}
	return true
}

func (h *handler) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// fail maps service errors onto status codes.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrMalformedItem):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrFatalIngestion):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path, "status", status, "error", err, "request_id", requestIDFrom(r.Context()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeAlerts(w http.ResponseWriter, alerts []domain.ScoredAlert) {
	if alerts == nil {
		alerts = []domain.ScoredAlert{}
	}
	writeJSON(w, http.StatusOK, alertsResponse{Count: len(alerts), Alerts: alerts})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	// NaN slips past min/max validation since every comparison with it is false.
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

// describe turns validator errors into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
