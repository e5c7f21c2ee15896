// Package fallback fetches items from an ordered list of providers, moving
// down the list on failure and ending at a provider that always answers.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

// Options tunes per-call and cross-call failure handling.
type Options struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RetryAfter is the backoff applied to a rate-limited provider that did
	// not say how long to wait.
	RetryAfter time.Duration
	// RequestsPerMinute caps calls to each non-terminal provider. Zero disables the quota.
	RequestsPerMinute int
	// BreakerFailures is the number of consecutive failures that opens a
	// provider's circuit; BreakerTimeout is how long it stays open.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Clock           clockwork.Clock
}

// DefaultOptions returns the settings used when the caller leaves a field zero.
func DefaultOptions() Options {
	return Options{
		Timeout:         10 * time.Second,
		RetryAfter:      60 * time.Second,
		BreakerFailures: 3,
		BreakerTimeout:  60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = d.RetryAfter
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = d.BreakerTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Result is the outcome of a successful chain fetch.
type Result struct {
	Items     []domain.RawItem
	Provider  string   // name of the provider that answered
	Synthetic bool     // true when the terminal provider answered
	Failed    []string // providers that failed or were skipped before the answer
}

// Chain tries its providers in order. The terminal provider is always
// attempted last and is not subject to backoff or circuit breaking.
type Chain struct {
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	terminal *link

	mu    sync.RWMutex
	links []*link
}

// New creates a chain over providers, ending at terminal.
func New(providers []domain.Provider, terminal domain.Provider, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Chain {
	c := &Chain{
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
	c.terminal = &link{provider: terminal, health: ProviderHealth{Name: terminal.Name(), Terminal: true}}
	c.links = c.buildLinks(providers, nil)
	return c
}

// Replace swaps the non-terminal providers. Passing the same provider instance
// keeps its health, breaker and quota. A different instance under a known name
// starts with a closed breaker and no backoff but keeps its counters.
func (c *Chain) Replace(providers []domain.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := make(map[string]*link, len(c.links))
	for _, l := range c.links {
		existing[l.provider.Name()] = l
	}
	c.links = c.buildLinks(providers, existing)
	c.logger.Info("provider chain replaced", "providers", c.namesLocked())
}

// Names returns the provider names in attempt order, terminal last.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namesLocked()
}

func (c *Chain) namesLocked() []string {
	names := make([]string, 0, len(c.links)+1)
	for _, l := range c.links {
		names = append(names, l.provider.Name())
	}
	return append(names, c.terminal.provider.Name())
}

func (c *Chain) buildLinks(providers []domain.Provider, existing map[string]*link) []*link {
	links := make([]*link, 0, len(providers))
	for _, p := range providers {
		l, ok := existing[p.Name()]
		switch {
		case !ok:
			links = append(links, c.newLink(p))
		case l.sameProvider(p):
			links = append(links, l)
		default:
			// A rebuilt provider has new credentials or fixtures, so the old
			// breaker, backoff and auth flag no longer describe it.
			fresh := c.newLink(p)
			fresh.health = l.history()
			links = append(links, fresh)
		}
	}
	return links
}

func (c *Chain) newLink(p domain.Provider) *link {
	name := p.Name()
	l := &link{provider: p, health: ProviderHealth{Name: name}}
	if c.opts.RequestsPerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.opts.RequestsPerMinute)), 1)
	}
	failures := c.opts.BreakerFailures
	l.breaker = gobreaker.NewCircuitBreaker[[]domain.RawItem](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     c.opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Throttling is handled by backoff, and cancellation is the caller's choice;
		// neither says the provider is broken.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrRateLimit) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("provider circuit state changed", "provider", name, "from", from.String(), "to", to.String())
			c.metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	c.metrics.BreakerState.WithLabelValues(name).Set(0)
	return l
}

// Fetch returns items from the first provider that answers. Provider errors
// are recorded and never returned; the error is non-nil only when ctx is
// cancelled or every provider including the terminal one failed, in which
// case it wraps domain.ErrFatalIngestion.
func (c *Chain) Fetch(ctx context.Context, query string, maxResults int) (Result, error) {
	c.mu.RLock()
	links := append([]*link(nil), c.links...)
	c.mu.RUnlock()

	var failed []string
	var errs []error
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		name := l.name()
		if reason, skip := l.shouldSkip(c.opts.Clock.Now()); skip {
			c.logger.Debug("skipping provider", "provider", name, "reason", reason)
			c.metrics.ProviderRequests.WithLabelValues(name, "skipped").Inc()
			failed = append(failed, name)
			continue
		}

		items, err := c.attempt(ctx, l, query, maxResults)
		if err == nil {
			return Result{Items: items, Provider: name, Failed: failed}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		failed = append(failed, name)
		errs = append(errs, err)
	}

	name := c.terminal.name()
	items, err := c.attempt(ctx, c.terminal, query, maxResults)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		errs = append(errs, err)
		return Result{}, fmt.Errorf("%w: %w", domain.ErrFatalIngestion, errors.Join(errs...))
	}
	if len(failed) > 0 {
		c.logger.Info("serving synthetic items", "provider", name, "failed", failed)
	}
	return Result{Items: items, Provider: name, Synthetic: true, Failed: failed}, nil
}

func (c *Chain) attempt(ctx context.Context, l *link, query string, maxResults int) ([]domain.RawItem, error) {
	name := l.name()
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := c.opts.Clock.Now()
	items, err := l.execute(callCtx, query, maxResults)
	c.metrics.ProviderDuration.WithLabelValues(name).Observe(c.opts.Clock.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		err = normalizeError(callCtx, name, c.opts.Timeout, err)
		kind := domain.ErrorKind(err)
		if isBreakerRejection(err) {
			kind = "open"
		}
		c.metrics.ProviderRequests.WithLabelValues(name, kind).Inc()
		l.recordFailure(err, c.opts.Clock.Now(), c.opts.RetryAfter)
		c.logger.Warn("provider fetch failed", "provider", name, "kind", kind, "error", err)
		return nil, err
	}

	c.metrics.ProviderRequests.WithLabelValues(name, "success").Inc()
	l.recordSuccess(c.opts.Clock.Now(), len(items))
	return items, nil
}

// normalizeError makes every failure a *domain.ProviderError.
func normalizeError(callCtx context.Context, name string, timeout time.Duration, err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	switch {
	case isBreakerRejection(err):
		return domain.NewProviderError(name, 0, fmt.Errorf("circuit open: %w", err))
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return domain.NewProviderError(name, 0, fmt.Errorf("timed out after %s: %w", timeout, err))
	default:
		return domain.NewProviderError(name, 0, err)
	}
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
