package fallback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

type stubProvider struct {
	name  string
	fetch func(ctx context.Context) ([]domain.RawItem, error)

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, _ string, _ int) ([]domain.RawItem, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fetch(ctx)
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okProvider(name string, items ...domain.RawItem) *stubProvider {
	return &stubProvider{name: name, fetch: func(context.Context) ([]domain.RawItem, error) { return items, nil }}
}

func failingProvider(name string, err error) *stubProvider {
	return &stubProvider{name: name, fetch: func(context.Context) ([]domain.RawItem, error) { return nil, err }}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChain(t *testing.T, providers []domain.Provider, terminal domain.Provider, opts Options) (*Chain, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	return New(providers, terminal, opts, discardLogger(), m), m
}

func healthByName(c *Chain) map[string]ProviderHealth {
	out := make(map[string]ProviderHealth)
	for _, h := range c.Health() {
		out[h.Name] = h
	}
	return out
}

func TestChain_FirstProviderAnswers(t *testing.T) {
	a := okProvider("a", domain.RawItem{Text: "flood"})
	b := okProvider("b")
	syn := okProvider("synthetic")
	c, _ := newTestChain(t, []domain.Provider{a, b}, syn, Options{})

	res, err := c.Fetch(context.Background(), "q", 10)

	require.NoError(t, err)
	assert.Equal(t, "a", res.Provider)
	assert.False(t, res.Synthetic)
	assert.Len(t, res.Items, 1)
	assert.Zero(t, b.Calls())
	assert.Zero(t, syn.Calls())
}

func TestChain_EmptyResultIsSuccess(t *testing.T) {
	a := okProvider("a")
	syn := okProvider("synthetic", domain.RawItem{Text: "x"})
	c, _ := newTestChain(t, []domain.Provider{a}, syn, Options{})

	res, err := c.Fetch(context.Background(), "q", 10)

	require.NoError(t, err)
	assert.Equal(t, "a", res.Provider)
	assert.Empty(t, res.Items)
	assert.Zero(t, syn.Calls())
}

func TestChain_FallsThroughToSynthetic(t *testing.T) {
	a := failingProvider("a", domain.NewAuthError("a", 401, errors.New("bad token")))
	b := failingProvider("b", domain.NewProviderError("b", 503, errors.New("unavailable")))
	syn := okProvider("synthetic", domain.RawItem{Text: "wildfire"})
	c, m := newTestChain(t, []domain.Provider{a, b}, syn, Options{})

	res, err := c.Fetch(context.Background(), "q", 10)

	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, "synthetic", res.Provider)
	assert.Equal(t, []string{"a", "b"}, res.Failed)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())

	h := healthByName(c)
	assert.Equal(t, "auth", h["a"].LastErrorKind)
	assert.True(t, h["a"].OperatorActionRequired)
	assert.Equal(t, uint64(1), h["a"].Failures)
	assert.Equal(t, "provider", h["b"].LastErrorKind)
	assert.False(t, h["b"].OperatorActionRequired)
	assert.Contains(t, h["b"].LastError, "unavailable")
	assert.True(t, h["synthetic"].Terminal)
	assert.Equal(t, uint64(1), h["synthetic"].Successes)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("a", "auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("b", "provider")))
}

func TestChain_SuccessClearsOperatorFlag(t *testing.T) {
	fail := true
	a := &stubProvider{name: "a", fetch: func(context.Context) ([]domain.RawItem, error) {
		if fail {
			return nil, domain.NewAuthError("a", 403, nil)
		}
		return nil, nil
	}}
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{})

	_, _ = c.Fetch(context.Background(), "q", 10)
	require.True(t, healthByName(c)["a"].OperatorActionRequired)

	fail = false
	_, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	h := healthByName(c)["a"]
	assert.False(t, h.OperatorActionRequired)
	assert.Zero(t, h.ConsecutiveFailures)
}

func TestChain_RateLimitBackoff(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC))
	a := failingProvider("a", domain.NewRateLimitError("a", 30*time.Second, nil))
	syn := okProvider("synthetic")
	c, m := newTestChain(t, []domain.Provider{a}, syn, Options{Clock: clock})

	res, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, clock.Now().Add(30*time.Second), healthByName(c)["a"].BackoffUntil)

	clock.Advance(10 * time.Second)
	res, err = c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, 1, a.Calls(), "provider must be skipped while backing off")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("a", "skipped")))

	clock.Advance(21 * time.Second)
	_, err = c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Calls())
}

func TestChain_RateLimitDefaultRetryAfter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := failingProvider("a", domain.NewRateLimitError("a", 0, nil))
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{Clock: clock})

	_, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)

	assert.Equal(t, clock.Now().Add(60*time.Second), healthByName(c)["a"].BackoffUntil)
}

func TestChain_TimeoutIsProviderError(t *testing.T) {
	slow := &stubProvider{name: "slow", fetch: func(ctx context.Context) ([]domain.RawItem, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c, _ := newTestChain(t, []domain.Provider{slow}, okProvider("synthetic"), Options{Timeout: 20 * time.Millisecond})

	res, err := c.Fetch(context.Background(), "q", 10)

	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	h := healthByName(c)["slow"]
	assert.Equal(t, "provider", h.LastErrorKind)
	assert.Contains(t, h.LastError, "timed out")
}

func TestChain_ParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &stubProvider{name: "a", fetch: func(ctx context.Context) ([]domain.RawItem, error) {
		cancel()
		return nil, ctx.Err()
	}}
	syn := okProvider("synthetic")
	c, _ := newTestChain(t, []domain.Provider{a}, syn, Options{})

	_, err := c.Fetch(ctx, "q", 10)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, syn.Calls())
	assert.Zero(t, healthByName(c)["a"].Failures, "cancellation is not a provider failure")
}

func TestChain_AllFailIsFatal(t *testing.T) {
	a := failingProvider("a", domain.NewProviderError("a", 500, nil))
	syn := failingProvider("synthetic", errors.New("generator broken"))
	c, _ := newTestChain(t, []domain.Provider{a}, syn, Options{})

	_, err := c.Fetch(context.Background(), "q", 10)

	require.ErrorIs(t, err, domain.ErrFatalIngestion)
	assert.Contains(t, err.Error(), "generator broken")
}

func TestChain_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	a := failingProvider("a", domain.NewProviderError("a", 500, nil))
	c, m := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{BreakerFailures: 3})

	for range 3 {
		_, err := c.Fetch(context.Background(), "q", 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, "open", healthByName(c)["a"].Circuit)

	_, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Calls(), "open circuit must short-circuit the call")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("a", "open")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("a")))
}

func TestChain_RateLimitDoesNotTripBreaker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := failingProvider("a", domain.NewRateLimitError("a", time.Second, nil))
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{Clock: clock, BreakerFailures: 2})

	for range 4 {
		_, _ = c.Fetch(context.Background(), "q", 10)
		clock.Advance(2 * time.Second)
	}

	assert.Equal(t, 4, a.Calls())
	assert.Equal(t, "closed", healthByName(c)["a"].Circuit)
}

func TestChain_RequestQuota(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := okProvider("a")
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{Clock: clock, RequestsPerMinute: 1})

	res, _ := c.Fetch(context.Background(), "q", 10)
	assert.Equal(t, "a", res.Provider)

	res, _ = c.Fetch(context.Background(), "q", 10)
	assert.True(t, res.Synthetic, "quota exhausted, provider skipped")

	clock.Advance(time.Minute)
	res, _ = c.Fetch(context.Background(), "q", 10)
	assert.Equal(t, "a", res.Provider)
	assert.Equal(t, 2, a.Calls())
}

func TestChain_ReplacePreservesHealthByName(t *testing.T) {
	a := failingProvider("a", domain.NewProviderError("a", 500, nil))
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{})
	_, _ = c.Fetch(context.Background(), "q", 10)

	a2 := okProvider("a")
	b := okProvider("b")
	c.Replace([]domain.Provider{b, a2})

	assert.Equal(t, []string{"b", "a", "synthetic"}, c.Names())
	h := healthByName(c)
	assert.Equal(t, uint64(1), h["a"].Failures)
	assert.Zero(t, h["b"].Failures)

	res, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, 1, a.Calls(), "replaced provider instance is no longer called")
}

func TestChain_ReplaceRebuiltProviderResetsBreaker(t *testing.T) {
	revoked := failingProvider("official", domain.NewAuthError("official", 401, nil))
	syn := okProvider("synthetic")
	c, m := newTestChain(t, []domain.Provider{revoked}, syn, Options{BreakerFailures: 3})
	for range 3 {
		_, _ = c.Fetch(context.Background(), "q", 10)
	}
	h := healthByName(c)["official"]
	require.Equal(t, "open", h.Circuit)
	require.True(t, h.OperatorActionRequired)

	renewed := okProvider("official", domain.RawItem{Text: "flood"})
	c.Replace([]domain.Provider{renewed})

	h = healthByName(c)["official"]
	assert.Equal(t, "closed", h.Circuit)
	assert.False(t, h.OperatorActionRequired)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Equal(t, uint64(3), h.Failures, "counters survive a rebuild")
	assert.Equal(t, "auth", h.LastErrorKind)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("official")))

	res, err := c.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Equal(t, "official", res.Provider)
	assert.Equal(t, 1, renewed.Calls())
	assert.Equal(t, 3, syn.Calls())
}

func TestChain_ReplaceSameInstanceKeepsBreaker(t *testing.T) {
	a := failingProvider("a", domain.NewProviderError("a", 500, nil))
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{BreakerFailures: 2})
	for range 2 {
		_, _ = c.Fetch(context.Background(), "q", 10)
	}

	c.Replace([]domain.Provider{a})

	h := healthByName(c)["a"]
	assert.Equal(t, "open", h.Circuit)
	assert.Equal(t, 2, h.ConsecutiveFailures)
	_, _ = c.Fetch(context.Background(), "q", 10)
	assert.Equal(t, 2, a.Calls())
}

func TestChain_ItemsServedPerProvider(t *testing.T) {
	a := okProvider("a", domain.RawItem{Text: "flood"}, domain.RawItem{Text: "fire"})
	c, _ := newTestChain(t, []domain.Provider{a}, okProvider("synthetic"), Options{})

	for range 3 {
		_, err := c.Fetch(context.Background(), "q", 10)
		require.NoError(t, err)
	}

	h := healthByName(c)
	assert.Equal(t, uint64(6), h["a"].ItemsServed)
	assert.Equal(t, uint64(3), h["a"].Successes)
	assert.Zero(t, h["synthetic"].ItemsServed)
}

func TestChain_ReplaceWithNothingUsesTerminal(t *testing.T) {
	c, _ := newTestChain(t, []domain.Provider{okProvider("a")}, okProvider("synthetic"), Options{})
	c.Replace(nil)

	res, err := c.Fetch(context.Background(), "q", 10)

	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Empty(t, res.Failed)
}
