// Package poller drives the poll cycles that feed the whole system: every
// cycle enumerates active integrations, runs each one through the
// decrypt -> build driver -> fetch capabilities pipeline, and hands the
// aggregate payload to the event bus and the metrics stream.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/driver"
	"github.com/labwatch/labwatch/internal/model"
	"github.com/labwatch/labwatch/internal/store"
)

// Decrypter opens a stored credential blob
type Decrypter interface {
	Decrypt(container []byte) ([]byte, error)
}

// DriverBuilder constructs the driver variant for an integration
type DriverBuilder interface {
	Build(in model.Integration, plaintext []byte) (driver.Driver, error)
}

// Publisher is the event-bus side of the distribution fan-out
type Publisher interface {
	Publish(payload model.MetricPayload)
}

// Broadcaster is the streaming side of the distribution fan-out
type Broadcaster interface {
	Broadcast(payload any)
}

// Config carries the scheduler's cadence settings
type Config struct {
	// Interval between cycle starts; also the de facto retry interval,
	// since a failed integration is simply retried next cycle.
	Interval time.Duration

	// CapabilityTimeout bounds each individual metric fetch so one slow
	// upstream cannot stall the whole cycle.
	CapabilityTimeout time.Duration
}

// Scheduler owns the poll cadence. All collaborators are injected; the
// scheduler holds no global state.
type Scheduler struct {
	store     store.Store
	decrypter Decrypter
	builder   DriverBuilder
	bus       Publisher
	metrics   Broadcaster
	logger    *slog.Logger
	cfg       Config

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}

	// cycleBusy enforces non-overlapping cycles: a tick that fires while
	// the previous cycle is still executing is skipped, not queued.
	cycleBusy atomic.Bool
}

// New creates a scheduler with injected dependencies
func New(
	st store.Store,
	decrypter Decrypter,
	builder DriverBuilder,
	bus Publisher,
	metrics Broadcaster,
	logger *slog.Logger,
	cfg Config,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = 10 * time.Second
	}

	return &Scheduler{
		store:     st,
		decrypter: decrypter,
		builder:   builder,
		bus:       bus,
		metrics:   metrics,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg,
	}
}

// Start begins polling: one immediate cycle, then a recurring timer at the
// configured interval. Calling Start while already running is a no-op and
// never arms a second timer.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.logger.Warn("start called while scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.active = true
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("starting scheduler",
		"interval", s.cfg.Interval,
		"capability_timeout", s.cfg.CapabilityTimeout,
	)

	go s.run(ctx, s.done)
}

// Stop cancels the pending timer and waits for an in-flight cycle to
// finish. Repeated calls are safe.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("scheduler stopped")
}

// IsActive reports whether the scheduler is running
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one poll cycle. Any panic escaping the cycle body is
// caught and logged; the scheduler itself never stops ticking.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.cycleBusy.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.cycleBusy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll cycle panicked", "panic", r)
		}
	}()

	start := time.Now()

	integrations, err := s.store.ListActiveIntegrations(ctx)
	if err != nil {
		s.logger.Error("failed to list active integrations", "error", err)
		return
	}

	// Integrations are polled sequentially to bound load on upstream
	// services; a single integration's failure never aborts the cycle.
	for _, in := range integrations {
		if ctx.Err() != nil {
			return
		}
		if !s.due(in) {
			continue
		}
		s.pollIntegration(ctx, in)
	}

	s.logger.Debug("poll cycle complete",
		"integrations", len(integrations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// due reports whether an integration should be polled this cycle. An
// integration with its own interval override is skipped until that interval
// has elapsed since its last attempt; the global cycle cadence applies to
// everything else. A skipped integration is not an attempt, so its last-poll
// fields are left untouched.
func (s *Scheduler) due(in model.Integration) bool {
	if in.PollIntervalSeconds <= 0 || in.LastPolledAt == nil {
		return true
	}
	return time.Since(*in.LastPolledAt) >= time.Duration(in.PollIntervalSeconds)*time.Second
}

// pollIntegration runs the full pipeline for one integration and persists
// the outcome. The last-poll timestamp is updated on every attempt,
// regardless of outcome.
func (s *Scheduler) pollIntegration(ctx context.Context, in model.Integration) {
	logger := s.logger.With("integration_id", in.ID, "integration", in.Name)
	polledAt := time.Now()

	plaintext, err := s.decrypter.Decrypt(in.EncryptedCredentials)
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			logger.Warn("integration has no credentials configured, skipping")
		} else {
			logger.Error("failed to decrypt credentials", "error", err)
		}
		s.persistOutcome(ctx, in, model.OutcomeFailed, polledAt)
		return
	}

	drv, err := s.builder.Build(in, plaintext)
	if err != nil {
		logger.Error("failed to build driver", "service_type", in.ServiceType, "error", err)
		s.persistOutcome(ctx, in, model.OutcomeFailed, polledAt)
		return
	}
	defer drv.Close()

	caps, err := drv.Capabilities(ctx)
	if err != nil {
		logger.Error("failed to enumerate capabilities", "error", err)
		s.persistOutcome(ctx, in, model.OutcomeFailed, polledAt)
		return
	}

	data := make(map[string]any, len(caps))
	failCount := 0

	for _, c := range caps {
		value, err := s.fetchCapability(ctx, drv, c.Key)
		if err != nil {
			failCount++
			logger.Warn("capability fetch failed", "capability", c.Key, "error", err)
			continue
		}
		data[c.Key] = value
	}

	outcome := model.OutcomeFailed
	if len(data) > 0 {
		// Any succeeding capability counts the poll as a success, even
		// alongside failures.
		outcome = model.OutcomeSuccess

		payload := model.MetricPayload{
			IntegrationID:   in.ID,
			IntegrationName: in.Name,
			IntegrationType: in.ServiceType,
			Timestamp:       time.Now(),
			Data:            data,
		}

		s.bus.Publish(payload)
		s.metrics.Broadcast(payload)
	}

	logger.Debug("integration polled",
		"outcome", outcome,
		"succeeded", len(data),
		"failed", failCount,
	)

	s.persistOutcome(ctx, in, outcome, polledAt)
}

// fetchCapability bounds a single metric fetch with the capability timeout
func (s *Scheduler) fetchCapability(ctx context.Context, drv driver.Driver, key string) (any, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CapabilityTimeout)
	defer cancel()

	return drv.FetchMetric(fetchCtx, key)
}

func (s *Scheduler) persistOutcome(ctx context.Context, in model.Integration, outcome model.PollOutcome, ts time.Time) {
	if err := s.store.UpdateLastPoll(ctx, in.ID, outcome, ts); err != nil {
		s.logger.Error("failed to persist poll outcome",
			"integration_id", in.ID,
			"outcome", outcome,
			"error", err,
		)
	}
}
