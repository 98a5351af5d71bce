package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
)

// MemoryStorage is an in-process store used when no database is
// configured and by the unit tests. It mirrors the Postgres layout:
// one versioned record per host plus per-day uptime rollups.
type MemoryStorage struct {
	hosts   map[string]*domain.HostStatus
	uptimes map[string]*domain.DayUptime
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		hosts:   make(map[string]*domain.HostStatus),
		uptimes: make(map[string]*domain.DayUptime),
	}
}

// -----------------------------------------------------------------------------
// Status Repository
// -----------------------------------------------------------------------------

type StatusRepo struct {
	store *MemoryStorage
}

func NewStatusRepo(store *MemoryStorage) *StatusRepo {
	return &StatusRepo{store: store}
}

func (r *StatusRepo) Get(ctx context.Context, hostID string) (*domain.HostStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.hosts[hostID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (r *StatusRepo) CompareAndSet(
	ctx context.Context,
	expectedVersion int64,
	rec *domain.HostStatus,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, exists := r.store.hosts[rec.HostID]
	if expectedVersion == 0 {
		if exists {
			return storage.ErrVersionConflict
		}
		rec.Version = 1
		r.store.hosts[rec.HostID] = rec.Clone()
		return nil
	}
	if !exists || stored.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	r.store.hosts[rec.HostID] = rec.Clone()
	return nil
}

func (r *StatusRepo) ListUp(ctx context.Context) ([]*domain.HostStatus, error) {
	return r.list(func(h *domain.HostStatus) bool { return h.State == domain.HostStateUp })
}

func (r *StatusRepo) List(ctx context.Context) ([]*domain.HostStatus, error) {
	return r.list(func(*domain.HostStatus) bool { return true })
}

func (r *StatusRepo) list(keep func(*domain.HostStatus) bool) ([]*domain.HostStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.HostStatus
	for _, h := range r.store.hosts {
		if keep(h) {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostID < out[j].HostID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Uptime Repository
// -----------------------------------------------------------------------------

type UptimeRepo struct {
	store *MemoryStorage
}

func NewUptimeRepo(store *MemoryStorage) *UptimeRepo {
	return &UptimeRepo{store: store}
}

func uptimeKey(hostID string, date time.Time) string {
	return hostID + "|" + date.Format("2006-01-02")
}

func (r *UptimeRepo) Accrue(
	ctx context.Context,
	hostID string,
	date time.Time,
	seconds int64,
	pct float64,
	now time.Time,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := uptimeKey(hostID, date)
	if row, ok := r.store.uptimes[key]; ok {
		row.UpSeconds += seconds
		row.UptimePct = pct
		row.LastUpdated = now
		return nil
	}
	r.store.uptimes[key] = &domain.DayUptime{
		HostID:      hostID,
		RecordDate:  date,
		UpSeconds:   seconds,
		UptimePct:   pct,
		LastUpdated: now,
	}
	return nil
}

func (r *UptimeRepo) GetDay(
	ctx context.Context,
	hostID string,
	date time.Time,
) (*domain.DayUptime, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.uptimes[uptimeKey(hostID, date)]
	if !ok {
		return nil, nil
	}
	c := *row
	return &c, nil
}
