// Package classifier connects the pipeline to the external text
// classification model and falls back to keyword matching when the model is
// unreachable.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

// MethodModel labels classifications that came from the remote model.
const MethodModel = "ml_model"

// Client implements domain.Classifier against a model-serving endpoint that
// accepts {"text": ...} and answers {"is_disaster": bool, "confidence": float}.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	IsDisaster *bool   `json:"is_disaster"`
	Confidence float64 `json:"confidence"`
}

// Classify implements domain.Classifier.
func (c *Client) Classify(ctx context.Context, text string) (domain.Classification, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return domain.Classification{}, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Classification{}, fmt.Errorf("decode response: %w", err)
	}
	if out.IsDisaster == nil {
		return domain.Classification{}, fmt.Errorf("decode response: missing is_disaster")
	}

	return domain.Classification{
		Relevant:   *out.IsDisaster,
		Confidence: domain.Clamp01(out.Confidence),
		Method:     MethodModel,
	}, nil
}

// Fallback tries the primary classifier and answers from the backup when the
// primary is absent or fails. It never returns an error if the backup does not.
type Fallback struct {
	primary domain.Classifier
	backup  domain.Classifier
	logger  *slog.Logger
	metrics *observability.Metrics
}

// WithFallback wraps primary, which may be nil, with backup.
func WithFallback(primary, backup domain.Classifier, logger *slog.Logger, metrics *observability.Metrics) *Fallback {
	return &Fallback{primary: primary, backup: backup, logger: logger, metrics: metrics}
}

// Classify implements domain.Classifier.
func (f *Fallback) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if f.primary != nil {
		c, err := f.primary.Classify(ctx, text)
		if err == nil {
			f.metrics.ClassifyRequests.WithLabelValues(c.Method, "success").Inc()
			return c, nil
		}
		if ctx.Err() != nil {
			return domain.Classification{}, ctx.Err()
		}
		f.metrics.ClassifyRequests.WithLabelValues(MethodModel, "error").Inc()
		f.logger.Warn("classifier unavailable, using keyword fallback", "error", err)
	}

	c, err := f.backup.Classify(ctx, text)
	if err != nil {
		f.metrics.ClassifyRequests.WithLabelValues("backup", "error").Inc()
		return domain.Classification{}, fmt.Errorf("backup classifier: %w", err)
	}
	f.metrics.ClassifyRequests.WithLabelValues(c.Method, "success").Inc()
	return c, nil
}
