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

// DownDetector finds up hosts whose heartbeats stopped arriving and
// marks them down. Transitions are edge-triggered: once a host is down
// it leaves the up set, so no repeated transitions fire per tick.
type DownDetector struct {
	store storage.StatusRepository
	cfg   Config
	log   *slog.Logger
}

// NewDownDetector creates a down detector sharing the engine's config.
func NewDownDetector(store storage.StatusRepository, cfg Config) *DownDetector {
	cfg.applyDefaults()
	return &DownDetector{
		store: store,
		cfg:   cfg,
		log:   slog.Default().With("component", "down-detector"),
	}
}

// Sweep runs one staleness pass at the given instant and returns the
// number of hosts marked down. One host's timeout decision is the
// atomic unit; cancellation takes effect between hosts.
func (d *DownDetector) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	hosts, err := d.store.ListUp(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list up hosts: %w", err)
	}

	threshold := d.cfg.StalenessThreshold()
	marked := 0

	for _, h := range hosts {
		if err := ctx.Err(); err != nil {
			return marked, err
		}

		// Re-read immediately before deciding: a heartbeat racing this
		// tick may have refreshed the record since the snapshot.
		rec, err := d.store.Get(ctx, h.HostID)
		if err != nil {
			d.log.Warn("sweep skipped host", "host", h.HostID, "error", err)
			continue
		}
		if rec == nil || rec.State != domain.HostStateUp || rec.LastSeenAt == nil {
			continue
		}

		elapsed := now.Sub(*rec.LastSeenAt)
		if elapsed <= threshold {
			continue
		}

		next := rec.Clone()
		next.MissedTicks++
		next.State = domain.HostStateDown
		next.LastTransitionAt = now
		if up := rec.LastSeenAt.Sub(rec.LastTransitionAt); up > 0 {
			next.TotalUpSeconds += int64(up.Seconds())
		}

		err = d.store.CompareAndSet(ctx, rec.Version, next)
		if errors.Is(err, storage.ErrVersionConflict) {
			// A fresh heartbeat won the race; leave the host up.
			metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			d.log.Warn("sweep failed to persist", "host", h.HostID, "error", err)
			continue
		}

		marked++
		metrics.Transitions.WithLabelValues("down").Inc()
		d.log.Warn("host is down",
			"host", h.HostID,
			"last_seen", *rec.LastSeenAt,
			"elapsed", elapsed,
		)
	}

	return marked, nil
}
