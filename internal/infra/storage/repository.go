package storage

import (
	"context"
	"errors"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
)

var (
	// ErrVersionConflict is returned by CompareAndSet when the stored
	// version no longer matches the expected one. The caller re-reads
	// and recomputes; it is never surfaced outside the engine.
	ErrVersionConflict = errors.New("status record version conflict")
)

// StatusRepository is the durable host_id -> HostStatus mapping the
// liveness engine writes through. Per-host serialization is achieved
// exclusively via CompareAndSet; implementations hold no lock the
// engine depends on across calls.
type StatusRepository interface {
	// Get retrieves the record for a host. Returns nil, nil when the
	// host has never been observed.
	Get(ctx context.Context, hostID string) (*domain.HostStatus, error)

	// CompareAndSet writes rec if the stored version equals
	// expectedVersion. expectedVersion 0 means the record must not
	// exist yet (insert path). Returns ErrVersionConflict otherwise.
	// On success rec.Version is the new stored version.
	CompareAndSet(ctx context.Context, expectedVersion int64, rec *domain.HostStatus) error

	// ListUp returns all records currently in state up, as a snapshot
	// taken at call time. Records may change state during iteration;
	// sweep writers re-validate each via CompareAndSet.
	ListUp(ctx context.Context) ([]*domain.HostStatus, error)

	// List returns all records ever observed.
	List(ctx context.Context) ([]*domain.HostStatus, error)
}

// UptimeRepository maintains per-day uptime rollups.
type UptimeRepository interface {
	// Accrue adds seconds to the host's rollup for the given date and
	// records the recomputed uptime percentage.
	Accrue(ctx context.Context, hostID string, date time.Time, seconds int64, pct float64, now time.Time) error

	// GetDay retrieves one day's rollup. Returns nil, nil when absent.
	GetDay(ctx context.Context, hostID string, date time.Time) (*domain.DayUptime, error)
}
