package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
	"github.com/upfleet/watchtower/internal/infra/storage/memory"
)

func newTestDetector(t *testing.T) (*Engine, *DownDetector, *memory.StatusRepo, time.Time) {
	t.Helper()
	repo := memory.NewStatusRepo(memory.NewMemoryStorage())
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		HeartbeatInterval:   time.Second,
		StalenessMultiplier: 3,
		Now:                 func() time.Time { return t0 },
	}
	return NewEngine(repo, cfg), NewDownDetector(repo, cfg), repo, t0
}

func TestSweep_EdgeTriggeredDown(t *testing.T) {
	eng, det, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)

	// Sweeps at T0+1 .. T0+10 with threshold 3s: exactly one
	// transition, at the first tick where elapsed > 3.
	totalMarked := 0
	for i := 1; i <= 10; i++ {
		marked, err := det.Sweep(ctx, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		totalMarked += marked

		rec, err := repo.Get(ctx, "web-1")
		require.NoError(t, err)
		if i <= 3 {
			assert.Equal(t, domain.HostStateUp, rec.State, "tick %d", i)
		} else {
			assert.Equal(t, domain.HostStateDown, rec.State, "tick %d", i)
		}
	}
	assert.Equal(t, 1, totalMarked, "down transition must fire exactly once")

	rec, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.MissedTicks)
	assert.Equal(t, t0.Add(4*time.Second), rec.LastTransitionAt)
}

func TestSweep_AccumulatesUptimeOnDownTransition(t *testing.T) {
	eng, det, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	// First heartbeat at T0 (transition unknown -> up at T0), last
	// heartbeat at T0+10.
	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)
	_, err = eng.Ingest(ctx, hb("web-1", 2, t0.Add(10*time.Second)))
	require.NoError(t, err)

	marked, err := det.Sweep(ctx, t0.Add(20*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	rec, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HostStateDown, rec.State)
	// Up from T0 (transition) until T0+10 (last known up).
	assert.Equal(t, int64(10), rec.TotalUpSeconds)
}

func TestSweep_MonotonicUptimeAcrossCycles(t *testing.T) {
	eng, det, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	var prev int64
	seq := int64(0)
	at := t0
	for cycle := 0; cycle < 3; cycle++ {
		seq++
		_, err := eng.Ingest(ctx, hb("web-1", seq, at))
		require.NoError(t, err)

		at = at.Add(10 * time.Second)
		_, err = det.Sweep(ctx, at)
		require.NoError(t, err)

		rec, err := repo.Get(ctx, "web-1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.TotalUpSeconds, prev, "total up seconds decreased")
		prev = rec.TotalUpSeconds
	}
}

func TestSweep_SkipsDownHosts(t *testing.T) {
	eng, det, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)

	_, err = det.Sweep(ctx, t0.Add(5*time.Second))
	require.NoError(t, err)

	before, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	require.Equal(t, domain.HostStateDown, before.State)

	// Further sweeps must not touch the record at all.
	marked, err := det.Sweep(ctx, t0.Add(60*time.Second))
	require.NoError(t, err)
	assert.Zero(t, marked)

	after, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.LastTransitionAt, after.LastTransitionAt)
}

func TestSweep_FreshHostUntouched(t *testing.T) {
	eng, det, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)

	// Elapsed exactly equals the threshold: not yet stale.
	marked, err := det.Sweep(ctx, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Zero(t, marked)

	rec, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HostStateUp, rec.State)
	assert.Zero(t, rec.MissedTicks)
}

// racingStore simulates a heartbeat landing between the sweep's re-read
// and its write: the first CompareAndSet conflicts.
type racingStore struct {
	storage.StatusRepository
	conflicts int
}

func (s *racingStore) CompareAndSet(ctx context.Context, expected int64, rec *domain.HostStatus) error {
	if s.conflicts > 0 {
		s.conflicts--
		return storage.ErrVersionConflict
	}
	return s.StatusRepository.CompareAndSet(ctx, expected, rec)
}

func TestSweep_HeartbeatWinsRace(t *testing.T) {
	eng, _, repo, t0 := newTestDetector(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, hb("web-1", 1, t0))
	require.NoError(t, err)

	racing := &racingStore{StatusRepository: repo, conflicts: 1}
	det := NewDownDetector(racing, Config{HeartbeatInterval: time.Second, StalenessMultiplier: 3})

	// The conflict means a fresh heartbeat committed first; the sweep
	// must skip the host instead of blind-overwriting.
	marked, err := det.Sweep(ctx, t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.Zero(t, marked)

	rec, err := repo.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HostStateUp, rec.State)
}

func TestSweep_CancelledBetweenHosts(t *testing.T) {
	eng, det, _, t0 := newTestDetector(t)

	for _, h := range []string{"web-1", "web-2", "web-3"} {
		_, err := eng.Ingest(context.Background(), hb(h, 1, t0))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := det.Sweep(ctx, t0.Add(10*time.Second))
	assert.ErrorIs(t, err, context.Canceled)
}
