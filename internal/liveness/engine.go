package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
	"github.com/upfleet/watchtower/internal/liveness/metrics"
)

// Config holds the liveness tuning knobs shared by the engine and the
// down detector.
type Config struct {
	// HeartbeatInterval is the expected beacon emit interval.
	HeartbeatInterval time.Duration

	// StalenessMultiplier scales HeartbeatInterval into the threshold
	// past which an up host is declared down.
	StalenessMultiplier int

	// MaxRetries bounds the compare-and-set retry loop per ingestion.
	MaxRetries int

	// Now supplies the engine clock. Defaults to time.Now; tests
	// substitute a synthetic clock.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = time.Second
	}
	if c.StalenessMultiplier <= 0 {
		c.StalenessMultiplier = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// StalenessThreshold is the elapsed time since last heartbeat past
// which a host is declared down.
func (c Config) StalenessThreshold() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.StalenessMultiplier)
}

// IngestResult is the outcome of one heartbeat ingestion.
type IngestResult struct {
	// Status is a snapshot of the record after ingestion.
	Status *domain.HostStatus

	// Applied is false when the event was stale (duplicate or
	// out-of-order) and mutated nothing.
	Applied bool

	// Transitioned is true when this event moved the host to up.
	Transitioned bool
}

// Engine turns the raw heartbeat stream into authoritative host status
// records. All per-host serialization goes through the store's
// compare-and-set; the engine holds no in-process lock, so ingestion
// for distinct hosts never contends and state survives restarts.
type Engine struct {
	store storage.StatusRepository
	cfg   Config
	log   *slog.Logger
}

// NewEngine creates a liveness engine backed by the given store.
func NewEngine(store storage.StatusRepository, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store: store,
		cfg:   cfg,
		log:   slog.Default().With("component", "liveness-engine"),
	}
}

// Ingest applies one heartbeat event. Replaying a stale or duplicate
// event after a crash-restart changes nothing: staleness is decided
// against the persisted record, not an in-memory cache.
func (e *Engine) Ingest(ctx context.Context, ev *domain.HeartbeatEvent) (*IngestResult, error) {
	if err := validate(ev); err != nil {
		metrics.HeartbeatsInvalid.Inc()
		return nil, err
	}

	start := e.cfg.Now()
	defer func() {
		metrics.IngestLatency.Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		rec, err := e.store.Get(ctx, ev.HostID)
		if err != nil {
			return nil, fmt.Errorf("failed to read status for %s: %w", ev.HostID, err)
		}

		if rec != nil && isStale(ev, rec) {
			// Acknowledged but not applied; at-least-once redelivery
			// and mild clock skew land here.
			metrics.HeartbeatsStale.Inc()
			return &IngestResult{Status: rec, Applied: false}, nil
		}

		next, transitioned := e.apply(ev, rec)

		var expected int64
		if rec != nil {
			expected = rec.Version
		}
		err = e.store.CompareAndSet(ctx, expected, next)
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.CASConflicts.Inc()
			continue // re-read and recompute
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist status for %s: %w", ev.HostID, err)
		}

		if transitioned {
			metrics.Transitions.WithLabelValues("up").Inc()
			e.log.Info("host is up",
				"host", ev.HostID,
				"last_seen", ev.EmittedAt,
			)
		}
		return &IngestResult{Status: next.Clone(), Applied: true, Transitioned: transitioned}, nil
	}

	return nil, ErrEngineBusy
}

// apply computes the successor record for a fresh event. rec is nil for
// a host never observed before (unknown -> up on first heartbeat).
func (e *Engine) apply(ev *domain.HeartbeatEvent, rec *domain.HostStatus) (*domain.HostStatus, bool) {
	now := e.cfg.Now()
	seen := ev.EmittedAt

	if rec == nil {
		return &domain.HostStatus{
			HostID:           ev.HostID,
			State:            domain.HostStateUp,
			LastSeenAt:       &seen,
			LastTransitionAt: now,
			LastSequence:     ev.Sequence,
			MissedTicks:      0,
		}, true
	}

	next := rec.Clone()
	next.LastSeenAt = &seen
	if ev.HasSequence() {
		next.LastSequence = ev.Sequence
	}

	transitioned := next.State != domain.HostStateUp
	if transitioned {
		next.State = domain.HostStateUp
		next.LastTransitionAt = now
		next.MissedTicks = 0
	}
	return next, transitioned
}

// isStale reports whether ev carries nothing newer than the record.
// Sequence numbers win when present; otherwise the producer timestamp
// must strictly advance the stored timeline.
func isStale(ev *domain.HeartbeatEvent, rec *domain.HostStatus) bool {
	if ev.HasSequence() && rec.LastSequence > 0 {
		return ev.Sequence <= rec.LastSequence
	}
	if rec.LastSeenAt == nil {
		return false
	}
	return !ev.EmittedAt.After(*rec.LastSeenAt)
}

func validate(ev *domain.HeartbeatEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if ev.HostID == "" {
		return fmt.Errorf("%w: empty host id", ErrInvalidEvent)
	}
	if ev.EmittedAt.IsZero() {
		return fmt.Errorf("%w: missing emitted_at", ErrInvalidEvent)
	}
	return nil
}
