package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

// State is the streaming controller's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
)

// Runner performs one ingestion pass. *Ingestor implements it.
type Runner interface {
	Ingest(ctx context.Context, query string, maxItems int) (Report, error)
}

// Status is a copy of the controller's stream state.
type Status struct {
	State           State     `json:"state"`
	Active          bool      `json:"active"`
	IntervalSeconds int       `json:"interval_seconds"`
	MaxItems        int       `json:"max_items"`
	Query           string    `json:"query"`
	Ticks           uint64    `json:"ticks"`
	LastTickAt      time.Time `json:"last_tick_at,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitzero"`
	LastReport      *Report   `json:"last_report,omitempty"`
}

// ControllerOptions sets the schedule used until Start overrides it.
type ControllerOptions struct {
	IntervalSeconds int
	MaxItems        int
	Query           string
	Clock           clockwork.Clock
}

// Controller runs the runner on a fixed interval. Ticks never overlap, and a
// tick from a stopped run never changes the state of a newer one.
type Controller struct {
	runner  Runner
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	// tickMu serializes ticks across runs.
	tickMu sync.Mutex

	mu         sync.Mutex
	status     Status
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewController creates an idle controller.
func NewController(runner Runner, opts ControllerOptions, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.IntervalSeconds <= 0 {
		opts.IntervalSeconds = 30
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 20
	}
	c := &Controller{
		runner:  runner,
		clock:   opts.Clock,
		logger:  logger,
		metrics: metrics,
		status: Status{
			State:           StateIdle,
			IntervalSeconds: opts.IntervalSeconds,
			MaxItems:        opts.MaxItems,
			Query:           opts.Query,
		},
	}
	metrics.StreamingState.Set(stateValue(StateIdle))
	return c
}

// Start begins streaming with an immediate tick. When already streaming it
// only updates the schedule for later ticks. Non-positive arguments keep the
// current values.
func (c *Controller) Start(intervalSeconds, maxItems int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if intervalSeconds > 0 {
		c.status.IntervalSeconds = intervalSeconds
	}
	if maxItems > 0 {
		c.status.MaxItems = maxItems
	}
	if c.status.Active {
		c.logger.Info("streaming schedule updated",
			"interval_seconds", c.status.IntervalSeconds, "max_items", c.status.MaxItems)
		return c.copyStatusLocked()
	}

	// A new run reports only its own ticks.
	c.status.Ticks = 0
	c.status.LastTickAt = time.Time{}
	c.status.LastError = ""
	c.status.LastErrorAt = time.Time{}
	c.status.LastReport = nil

	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.status.Active = true
	c.setStateLocked(StateRunning)

	go c.loop(ctx, c.generation, c.done)

	c.logger.Info("streaming started",
		"interval_seconds", c.status.IntervalSeconds, "max_items", c.status.MaxItems)
	return c.copyStatusLocked()
}

// Stop cancels the schedule. A tick already in flight finishes but its
// result is discarded. Stop is a no-op when idle.
func (c *Controller) Stop() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return c.copyStatusLocked()
}

func (c *Controller) stopLocked() <-chan struct{} {
	done := c.done
	if c.cancel == nil {
		return done
	}
	c.cancel()
	c.cancel = nil
	c.generation++
	c.status.Active = false
	c.setStateLocked(StateIdle)
	c.logger.Info("streaming stopped")
	return done
}

// Shutdown stops streaming and waits for the loop to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	done := c.stopLocked()
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a copy of the current stream state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyStatusLocked()
}

// CheckReadiness returns nil when the feed is serving: either idle, or
// streaming with at least one tick behind it and the last tick healthy.
func (c *Controller) CheckReadiness(_ context.Context) error {
	s := c.Status()
	switch {
	case s.State == StateDegraded:
		return errors.New("streaming degraded: " + s.LastError)
	case s.Active && s.Ticks == 0:
		return errors.New("streaming has not completed a tick yet")
	default:
		return nil
	}
}

func (c *Controller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		c.tick(ctx, gen)

		c.mu.Lock()
		interval := time.Duration(c.status.IntervalSeconds) * time.Second
		c.mu.Unlock()

		timer := c.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

func (c *Controller) tick(ctx context.Context, gen uint64) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	// Stop may have landed while a previous run's tick held tickMu.
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	query, maxItems := c.status.Query, c.status.MaxItems
	c.mu.Unlock()

	start := c.clock.Now()
	report, err := c.runner.Ingest(ctx, query, maxItems)
	c.metrics.CycleDuration.Observe(c.clock.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.metrics.CyclesTotal.WithLabelValues("cancelled").Inc()
		c.logger.Debug("discarding tick from stopped run")
		return
	}

	now := c.clock.Now()
	c.status.Ticks++
	c.status.LastTickAt = now
	if err != nil {
		if ctx.Err() != nil {
			c.metrics.CyclesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		c.metrics.CyclesTotal.WithLabelValues("fatal").Inc()
		c.status.LastError = err.Error()
		c.status.LastErrorAt = now
		c.setStateLocked(StateDegraded)
		c.logger.Error("ingestion tick failed", "error", err)
		return
	}

	c.metrics.CyclesTotal.WithLabelValues("success").Inc()
	report.Alerts = nil
	c.status.LastReport = &report
	if c.status.State == StateDegraded {
		c.logger.Info("streaming recovered", "provider", report.Provider)
	}
	c.setStateLocked(StateRunning)
	c.logger.Info("ingestion tick complete",
		"provider", report.Provider,
		"synthetic", report.Synthetic,
		"fetched", report.Fetched,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)
}

func (c *Controller) setStateLocked(s State) {
	c.status.State = s
	c.metrics.StreamingState.Set(stateValue(s))
}

func (c *Controller) copyStatusLocked() Status {
	s := c.status
	if s.LastReport != nil {
		r := *s.LastReport
		s.LastReport = &r
	}
	return s
}

func stateValue(s State) float64 {
	switch s {
	case StateRunning:
		return 1
	case StateDegraded:
		return 2
	default:
		return 0
	}
}
