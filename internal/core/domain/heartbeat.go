package domain

import "time"

// HeartbeatEvent is the wire record a beacon publishes once per interval.
// Immutable once created.
type HeartbeatEvent struct {
	HostID    string    `json:"host_id"`
	Queue     string    `json:"queue"`
	EmittedAt time.Time `json:"emitted_at"`
	// Sequence is a per-beacon monotonically increasing counter.
	// Zero means the emitter did not supply one; ordering then falls
	// back to EmittedAt.
	Sequence int64 `json:"sequence,omitempty"`
}

// HasSequence reports whether the emitter supplied a sequence counter.
func (e *HeartbeatEvent) HasSequence() bool {
	return e.Sequence > 0
}
