// Package mapbox resolves free-form location text through the Mapbox
// forward geocoding API. The pipeline consults it only after the local
// gazetteer finds nothing.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

	// Profile locations are free text; long ones are bios, not places.
	maxLocationLength = 100

	// Mapbox answers almost any string with something. Below this relevance
	// the match is usually a fuzzy hit on one word of a joke location.
	minRelevance = 0.5
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token   string
	http    *http.Client
	baseURL string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Locate implements domain.Geocoder. Strings that cannot name a place are
// rejected without a request.
func (c *Client) Locate(ctx context.Context, location string) (*domain.PlaceMatch, error) {
	location = strings.TrimSpace(location)
	if !plausibleLocation(location) {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}

	start := time.Now()
	match, err := c.search(ctx, location)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		c.logger.Warn("mapbox lookup failed", "location", location, "error", err)
		return nil, err
	case match == nil:
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return match, nil
}

func (c *Client) search(ctx context.Context, location string) (*domain.PlaceMatch, error) {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"region,district,place,locality,neighborhood"},
		"autocomplete": {"false"},
	}
	endpoint := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(location), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mapbox status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode mapbox response: %w", err)
	}
	return payload.best(), nil
}

// plausibleLocation filters out blanks, bios and emoji-only strings.
func plausibleLocation(s string) bool {
	if s == "" || len(s) > maxLocationLength {
		return false
	}
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

type featureCollection struct {
	Features []struct {
		Center    []float64 `json:"center"` // [lon, lat]
		PlaceName string    `json:"place_name"`
		Relevance float64   `json:"relevance"`
	} `json:"features"`
}

// best returns the first feature that is relevant enough and has a valid
// center, or nil.
func (fc featureCollection) best() *domain.PlaceMatch {
	for _, f := range fc.Features {
		if f.Relevance < minRelevance || len(f.Center) != 2 {
			continue
		}
		coord := domain.Coordinate{Lat: f.Center[1], Lon: f.Center[0]}
		if !coord.Valid() {
			continue
		}
		return &domain.PlaceMatch{Coordinate: coord, Name: f.PlaceName, Relevance: domain.Clamp01(f.Relevance)}
	}
	return nil
}
