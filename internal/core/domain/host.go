package domain

import "time"

// HostStatus is the authoritative availability record for one host.
// Mutated only by the liveness engine and the down detector.
type HostStatus struct {
	HostID           string     `db:"host_id"`
	State            HostState  `db:"state"`
	LastSeenAt       *time.Time `db:"last_seen_at"`
	LastTransitionAt time.Time  `db:"last_transition_at"`
	LastSequence     int64      `db:"last_sequence"`
	MissedTicks      int        `db:"missed_ticks"`
	TotalUpSeconds   int64      `db:"total_up_seconds"`
	// Version backs the store's compare-and-set. Zero means the record
	// does not exist yet.
	Version int64 `db:"version"`
}

type HostState string

const (
	// HostStateUnknown is the implicit state before the first heartbeat.
	// It is left on the first event and never re-entered.
	HostStateUnknown HostState = "unknown"
	HostStateUp      HostState = "up"
	HostStateDown    HostState = "down"
)

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the stored record to mutation.
func (h *HostStatus) Clone() *HostStatus {
	c := *h
	if h.LastSeenAt != nil {
		t := *h.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}

// DayUptime is one day's accumulated uptime for a host.
type DayUptime struct {
	HostID      string    `db:"host_id"`
	RecordDate  time.Time `db:"record_date"`
	UpSeconds   int64     `db:"up_seconds"`
	UptimePct   float64   `db:"uptime_pct"`
	LastUpdated time.Time `db:"last_updated"`
}
