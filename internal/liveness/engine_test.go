package liveness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
	"github.com/upfleet/watchtower/internal/infra/storage/memory"
)

func newTestEngine(t *testing.T, now func() time.Time) (*Engine, *memory.StatusRepo) {
	t.Helper()
	repo := memory.NewStatusRepo(memory.NewMemoryStorage())
	eng := NewEngine(repo, Config{
		HeartbeatInterval:   time.Second,
		StalenessMultiplier: 3,
		Now:                 now,
	})
	return eng, repo
}

func hb(host string, seq int64, at time.Time) *domain.HeartbeatEvent {
	return &domain.HeartbeatEvent{HostID: host, Queue: "q-" + host, EmittedAt: at, Sequence: seq}
}

func TestIngest_FirstHeartbeatCreatesUpRecord(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng, repo := newTestEngine(t, func() time.Time { return base })

	res, err := eng.Ingest(context.Background(), hb("web-1", 1, base))
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.Transitioned)
	assert.Equal(t, domain.HostStateUp, res.Status.State)
	assert.Equal(t, base, *res.Status.LastSeenAt)
	assert.Equal(t, int64(1), res.Status.LastSequence)
	assert.Equal(t, 0, res.Status.MissedTicks)

	stored, err := repo.Get(context.Background(), "web-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.Version)
}

func TestIngest_Idempotent(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng, repo := newTestEngine(t, func() time.Time { return base })

	ev := hb("web-1", 5, base)
	first, err := eng.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, first.Applied)

	// Replaying the identical event must not mutate anything.
	second, err := eng.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.False(t, second.Transitioned)

	stored, err := repo.Get(context.Background(), "web-1")
	require.NoError(t, err)
	assert.Equal(t, first.Status.Version, stored.Version)
	assert.Equal(t, *first.Status.LastSeenAt, *stored.LastSeenAt)
	assert.Equal(t, first.Status.TotalUpSeconds, stored.TotalUpSeconds)
}

func TestIngest_StaleSequenceRejected(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng, repo := newTestEngine(t, func() time.Time { return base })

	_, err := eng.Ingest(context.Background(), hb("web-1", 7, base))
	require.NoError(t, err)

	// Sequence 5 after 7: stale duplicate, no mutation, no transition.
	res, err := eng.Ingest(context.Background(), hb("web-1", 5, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, res.Applied)

	stored, err := repo.Get(context.Background(), "web-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.LastSequence)
	assert.Equal(t, base, *stored.LastSeenAt)
}

func TestIngest_OutOfOrderTimestampsWithoutSequence(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng, repo := newTestEngine(t, func() time.Time { return base })
	ctx := context.Background()

	// Events at T, T-5, T+3 arriving in that order.
	for _, at := range []time.Time{base, base.Add(-5 * time.Second), base.Add(3 * time.Second)} {
		_, err := eng.Ingest(ctx, hb("web-1", 0, at))
		require.NoError(t, err)
	}

	stored, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(3*time.Second), *stored.LastSeenAt, "T-5 must be dropped, T+3 must win")
}

func TestIngest_EqualTimestampIsStale(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, func() time.Time { return base })
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 0, base))
	require.NoError(t, err)

	res, err := eng.Ingest(ctx, hb("web-1", 0, base))
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestIngest_Resurrection(t *testing.T) {
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := t0
	eng, repo := newTestEngine(t, func() time.Time { return now })
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)

	// Mark the host down out-of-band, the way the sweep would.
	rec, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	down := rec.Clone()
	down.State = domain.HostStateDown
	down.MissedTicks = 1
	require.NoError(t, repo.CompareAndSet(ctx, rec.Version, down))

	// Fresh heartbeat at T+1 resurrects exactly once.
	now = t0.Add(time.Second)
	res, err := eng.Ingest(ctx, hb("web-1", 2, t0.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.Transitioned)
	assert.Equal(t, domain.HostStateUp, res.Status.State)
	assert.Equal(t, t0.Add(time.Second), res.Status.LastTransitionAt)
	assert.Equal(t, 0, res.Status.MissedTicks)

	// A second fresh heartbeat keeps the host up without a transition.
	res, err = eng.Ingest(ctx, hb("web-1", 3, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.Transitioned)
}

func TestIngest_InvalidEvents(t *testing.T) {
	eng, _ := newTestEngine(t, time.Now)
	ctx := context.Background()

	cases := []struct {
		name string
		ev   *domain.HeartbeatEvent
	}{
		{"nil event", nil},
		{"empty host id", &domain.HeartbeatEvent{EmittedAt: time.Now()}},
		{"zero timestamp", &domain.HeartbeatEvent{HostID: "web-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Ingest(ctx, tc.ev)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

// conflictingStore wraps a StatusRepository and fails every
// CompareAndSet with a version conflict.
type conflictingStore struct {
	storage.StatusRepository
}

func (s *conflictingStore) CompareAndSet(ctx context.Context, expected int64, rec *domain.HostStatus) error {
	return storage.ErrVersionConflict
}

func TestIngest_RetriesExhaustedSurfaceEngineBusy(t *testing.T) {
	repo := memory.NewStatusRepo(memory.NewMemoryStorage())
	eng := NewEngine(&conflictingStore{repo}, Config{MaxRetries: 3})

	_, err := eng.Ingest(context.Background(), hb("web-1", 1, time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineBusy))
}

func TestIngest_ConcurrentDistinctHostsMakeProgress(t *testing.T) {
	eng, repo := newTestEngine(t, time.Now)
	ctx := context.Background()

	hosts := []string{"web-1", "web-2"}
	const perHost = 50

	var wg sync.WaitGroup
	for _, h := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			base := time.Now()
			for i := 1; i <= perHost; i++ {
				_, err := eng.Ingest(ctx, hb(host, int64(i), base.Add(time.Duration(i)*time.Second)))
				assert.NoError(t, err)
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent ingestion for distinct hosts blocked")
	}

	for _, h := range hosts {
		rec, err := repo.Get(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, int64(perHost), rec.LastSequence)
	}
}
