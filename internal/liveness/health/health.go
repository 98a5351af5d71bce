// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full collector health report.
type Report struct {
	Status       SystemStatus `json:"status"`
	HostsUp      int          `json:"hosts_up"`
	HostsDown    int          `json:"hosts_down"`
	StoreOK      bool         `json:"store_ok"`
	BrokerOK     bool         `json:"broker_ok"`
	DeadLetters  int64        `json:"dead_letters"`
	OldestDownID string       `json:"oldest_down_host,omitempty"`
}
