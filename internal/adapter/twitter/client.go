// Package twitter fetches recent posts from the X/Twitter v2 recent-search
// API, either directly or through the twitterapi.io proxy.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// Provider names as they appear in configuration, health and alert sources.
const (
	OfficialName     = "official"
	TwitterAPIIOName = "twitterapi_io"
)

const (
	officialSearchURL     = "https://api.twitter.com/2/tweets/search/recent"
	twitterAPIIOSearchURL = "https://api.twitterapi.io/v2/tweets/search/recent"

	maxPageSize = 100
)

// Client implements domain.Provider against a v2 recent-search endpoint.
type Client struct {
	name        string
	token       string
	searchURL   string
	queryFormat string // %s is replaced by the caller's query
	minResults  int
	httpClient  *http.Client
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewOfficial creates a client for the official API authenticated by a bearer token.
func NewOfficial(bearerToken string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		name:        OfficialName,
		token:       bearerToken,
		searchURL:   officialSearchURL,
		queryFormat: "(%s) lang:en -is:retweet",
		minResults:  10,
		httpClient:  &http.Client{Timeout: timeout},
		clock:       clockwork.NewRealClock(),
		logger:      logger,
	}
}

// NewTwitterAPIIO creates a client for the twitterapi.io proxy authenticated by an API key.
func NewTwitterAPIIO(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		name:        TwitterAPIIOName,
		token:       apiKey,
		searchURL:   twitterAPIIOSearchURL,
		queryFormat: "%s lang:en",
		minResults:  1,
		httpClient:  &http.Client{Timeout: timeout},
		clock:       clockwork.NewRealClock(),
		logger:      logger,
	}
}

// Name implements domain.Provider.
func (c *Client) Name() string { return c.name }

// Fetch implements domain.Provider.
func (c *Client) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawItem, error) {
	params := url.Values{
		"query":        {fmt.Sprintf(c.queryFormat, strings.TrimSpace(query))},
		"max_results":  {strconv.Itoa(min(max(maxResults, c.minResults), maxPageSize))},
		"tweet.fields": {"created_at,author_id,geo,lang"},
		"user.fields":  {"location"},
		"place.fields": {"full_name,geo"},
		"expansions":   {"author_id,geo.place_id"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, domain.NewProviderError(c.name, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewProviderError(c.name, 0, fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewProviderError(c.name, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	items := body.items()
	c.logger.Debug("search complete", "provider", c.name, "items", len(items))
	return items, nil
}

func (c *Client) statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewAuthError(c.name, resp.StatusCode, cause)
	case http.StatusTooManyRequests:
		return domain.NewRateLimitError(c.name, c.retryAfter(resp.Header), cause)
	default:
		return domain.NewProviderError(c.name, resp.StatusCode, cause)
	}
}

// retryAfter reads x-rate-limit-reset (epoch seconds) or Retry-After
// (delta seconds). Zero means unknown.
func (c *Client) retryAfter(h http.Header) time.Duration {
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(c.clock.Now()); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
