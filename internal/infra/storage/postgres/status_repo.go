package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
)

// StatusRepo implements storage.StatusRepository using PostgreSQL.
// The version column backs compare-and-set; every successful write
// bumps it by one.
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new PostgreSQL status repository.
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// Get retrieves the status record for a host.
func (r *StatusRepo) Get(ctx context.Context, hostID string) (*domain.HostStatus, error) {
	var rec domain.HostStatus
	err := r.db.GetContext(ctx, &rec,
		`SELECT host_id, state, last_seen_at, last_transition_at, last_sequence,
		        missed_ticks, total_up_seconds, version
		 FROM host_status WHERE host_id = $1`, hostID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host status: %w", err)
	}
	return &rec, nil
}

// CompareAndSet writes rec if the stored version matches expectedVersion.
// expectedVersion 0 inserts a fresh record and fails if one appeared
// concurrently.
func (r *StatusRepo) CompareAndSet(
	ctx context.Context,
	expectedVersion int64,
	rec *domain.HostStatus,
) error {
	if expectedVersion == 0 {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO host_status
			   (host_id, state, last_seen_at, last_transition_at, last_sequence,
			    missed_ticks, total_up_seconds, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
			 ON CONFLICT (host_id) DO NOTHING`,
			rec.HostID, rec.State, rec.LastSeenAt, rec.LastTransitionAt,
			rec.LastSequence, rec.MissedTicks, rec.TotalUpSeconds)
		if err != nil {
			return fmt.Errorf("failed to insert host status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return storage.ErrVersionConflict
		}
		rec.Version = 1
		return nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE host_status
		 SET state = $1, last_seen_at = $2, last_transition_at = $3,
		     last_sequence = $4, missed_ticks = $5, total_up_seconds = $6,
		     version = version + 1
		 WHERE host_id = $7 AND version = $8`,
		rec.State, rec.LastSeenAt, rec.LastTransitionAt, rec.LastSequence,
		rec.MissedTicks, rec.TotalUpSeconds, rec.HostID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update host status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

// ListUp returns all hosts currently in state up.
func (r *StatusRepo) ListUp(ctx context.Context) ([]*domain.HostStatus, error) {
	return r.list(ctx,
		`SELECT host_id, state, last_seen_at, last_transition_at, last_sequence,
		        missed_ticks, total_up_seconds, version
		 FROM host_status WHERE state = $1 ORDER BY host_id`, string(domain.HostStateUp))
}

// List returns all hosts ever observed.
func (r *StatusRepo) List(ctx context.Context) ([]*domain.HostStatus, error) {
	return r.list(ctx,
		`SELECT host_id, state, last_seen_at, last_transition_at, last_sequence,
		        missed_ticks, total_up_seconds, version
		 FROM host_status ORDER BY host_id`)
}

func (r *StatusRepo) list(ctx context.Context, query string, args ...any) ([]*domain.HostStatus, error) {
	var rows []domain.HostStatus
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list host status: %w", err)
	}
	out := make([]*domain.HostStatus, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}
