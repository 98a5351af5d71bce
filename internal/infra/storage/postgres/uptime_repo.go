package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
)

// UptimeRepo implements storage.UptimeRepository using PostgreSQL.
// One row per (host_id, record_date); Accrue upserts so the first
// heartbeat of a day creates the row.
type UptimeRepo struct {
	db *DB
}

// NewUptimeRepo creates a new PostgreSQL uptime repository.
func NewUptimeRepo(db *DB) *UptimeRepo {
	return &UptimeRepo{db: db}
}

// Accrue adds seconds to the host's rollup for date.
func (r *UptimeRepo) Accrue(
	ctx context.Context,
	hostID string,
	date time.Time,
	seconds int64,
	pct float64,
	now time.Time,
) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO uptime_days (host_id, record_date, up_seconds, uptime_pct, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (host_id, record_date) DO UPDATE
		 SET up_seconds = uptime_days.up_seconds + EXCLUDED.up_seconds,
		     uptime_pct = EXCLUDED.uptime_pct,
		     last_updated = EXCLUDED.last_updated`,
		hostID, date.Format("2006-01-02"), seconds, pct, now)
	if err != nil {
		return fmt.Errorf("failed to accrue uptime: %w", err)
	}
	return nil
}

// GetDay retrieves one day's rollup.
func (r *UptimeRepo) GetDay(
	ctx context.Context,
	hostID string,
	date time.Time,
) (*domain.DayUptime, error) {
	var row domain.DayUptime
	err := r.db.GetContext(ctx, &row,
		`SELECT host_id, record_date, up_seconds, uptime_pct, last_updated
		 FROM uptime_days WHERE host_id = $1 AND record_date = $2`,
		hostID, date.Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get uptime day: %w", err)
	}
	return &row, nil
}
