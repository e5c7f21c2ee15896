package fallback

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// ProviderHealth is a point-in-time view of one provider's record.
type ProviderHealth struct {
	Name                   string    `json:"name"`
	Terminal               bool      `json:"terminal,omitempty"`
	Successes              uint64    `json:"successes"`
	Failures               uint64    `json:"failures"`
	ItemsServed            uint64    `json:"items_served"`
	ConsecutiveFailures    int       `json:"consecutive_failures"`
	LastSuccessAt          time.Time `json:"last_success_at,omitzero"`
	LastErrorKind          string    `json:"last_error_kind,omitempty"`
	LastError              string    `json:"last_error,omitempty"`
	LastErrorAt            time.Time `json:"last_error_at,omitzero"`
	OperatorActionRequired bool      `json:"operator_action_required"`
	BackoffUntil           time.Time `json:"backoff_until,omitzero"`
	Circuit                string    `json:"circuit,omitempty"`
}

type link struct {
	breaker *gobreaker.CircuitBreaker[[]domain.RawItem] // nil for the terminal link
	limiter *rate.Limiter                               // nil when no quota applies

	mu       sync.Mutex
	provider domain.Provider
	health   ProviderHealth
}

func (l *link) name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health.Name
}

func (l *link) execute(ctx context.Context, query string, maxResults int) ([]domain.RawItem, error) {
	l.mu.Lock()
	p := l.provider
	l.mu.Unlock()

	if l.breaker == nil {
		return p.Fetch(ctx, query, maxResults)
	}
	return l.breaker.Execute(func() ([]domain.RawItem, error) {
		return p.Fetch(ctx, query, maxResults)
	})
}

// shouldSkip reports whether the link is backing off or out of quota.
func (l *link) shouldSkip(now time.Time) (string, bool) {
	l.mu.Lock()
	backoff := l.health.BackoffUntil
	l.mu.Unlock()

	if now.Before(backoff) {
		return "rate limited until " + backoff.Format(time.RFC3339), true
	}
	if l.limiter != nil && !l.limiter.AllowN(now, 1) {
		return "request quota exhausted", true
	}
	return "", false
}

func (l *link) sameProvider(p domain.Provider) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provider == p
}

// history returns the record's cumulative counters and last outcomes, without
// the state that steers attempts.
func (l *link) history() ProviderHealth {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.health
	h.ConsecutiveFailures = 0
	h.OperatorActionRequired = false
	h.BackoffUntil = time.Time{}
	return h
}

func (l *link) recordSuccess(now time.Time, items int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.health.Successes++
	l.health.ItemsServed += uint64(items)
	l.health.ConsecutiveFailures = 0
	l.health.LastSuccessAt = now
	l.health.OperatorActionRequired = false
	l.health.BackoffUntil = time.Time{}
}

func (l *link) recordFailure(err error, now time.Time, defaultRetryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.health.Failures++
	l.health.ConsecutiveFailures++
	l.health.LastErrorKind = domain.ErrorKind(err)
	l.health.LastError = err.Error()
	l.health.LastErrorAt = now

	switch {
	case errors.Is(err, domain.ErrAuth):
		l.health.OperatorActionRequired = true
	case errors.Is(err, domain.ErrRateLimit):
		wait := defaultRetryAfter
		var pe *domain.ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			wait = pe.RetryAfter
		}
		l.health.BackoffUntil = now.Add(wait)
	}
}

func (l *link) snapshot() ProviderHealth {
	l.mu.Lock()
	h := l.health
	l.mu.Unlock()
	if l.breaker != nil {
		h.Circuit = l.breaker.State().String()
	}
	return h
}

// Health returns every provider's record in attempt order, terminal last.
func (c *Chain) Health() []ProviderHealth {
	c.mu.RLock()
	links := append([]*link(nil), c.links...)
	c.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(links)+1)
	for _, l := range links {
		out = append(out, l.snapshot())
	}
	return append(out, c.terminal.snapshot())
}
