package health

import (
	"context"
	"sync"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/infra/storage"
)

// StoreHealth checks the backing store's connectivity.
type StoreHealth interface {
	Health(ctx context.Context) error
}

// BrokerHealth reports the transport connection state.
type BrokerHealth interface {
	Connected() bool
}

// DeadLetterCounter reports how many rejected messages are parked.
type DeadLetterCounter interface {
	DeadLetterCount(ctx context.Context) (int64, error)
}

// Monitor aggregates health status from the collector's components.
// Store, broker and dead letter sources are optional; a nil source is
// reported healthy.
type Monitor struct {
	statusRepo storage.StatusRepository
	store      StoreHealth
	broker     BrokerHealth
	deadLetter DeadLetterCounter

	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	statusRepo storage.StatusRepository,
	store StoreHealth,
	broker BrokerHealth,
	deadLetter DeadLetterCounter,
) *Monitor {
	return &Monitor{
		statusRepo: statusRepo,
		store:      store,
		broker:     broker,
		deadLetter: deadLetter,
	}
}

// CheckHealth performs a health check of the collector.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering the store
	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{
		Status:   StatusHealthy,
		StoreOK:  true,
		BrokerOK: true,
	}

	if m.store != nil {
		if err := m.store.Health(ctx); err != nil {
			report.StoreOK = false
		}
	}

	if m.broker != nil {
		report.BrokerOK = m.broker.Connected()
	}

	if m.deadLetter != nil {
		if n, err := m.deadLetter.DeadLetterCount(ctx); err == nil {
			report.DeadLetters = n
		}
	}

	hosts, err := m.statusRepo.List(ctx)
	if err != nil {
		report.StoreOK = false
	} else {
		for _, h := range hosts {
			switch h.State {
			case domain.HostStateUp:
				report.HostsUp++
			case domain.HostStateDown:
				report.HostsDown++
				if report.OldestDownID == "" {
					report.OldestDownID = h.HostID
				}
			}
		}
	}

	// Without the store the collector cannot make progress at all;
	// without the broker it can still serve reads and sweep.
	if !report.StoreOK {
		report.Status = StatusCritical
	} else if !report.BrokerOK || report.DeadLetters > 0 {
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
