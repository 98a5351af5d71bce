package control

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
	"github.com/upfleet/watchtower/internal/liveness"
	"github.com/upfleet/watchtower/internal/liveness/metrics"
)

// handleMessage processes one inbound transport message. Delivery is
// at-least-once; the engine's staleness check makes redelivery safe, so
// every path here ends with the message acknowledged.
func (c *Collector) handleMessage(ctx context.Context, topic string, payload []byte) {
	queue := queueFromTopic(topic)
	metrics.HeartbeatsReceived.WithLabelValues(queue).Inc()

	var ev domain.HeartbeatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.HeartbeatsInvalid.Inc()
		c.deadLetter(ctx, topic, payload, "malformed payload: "+err.Error())
		return
	}

	if ev.Queue == "" {
		ev.Queue = queue
	}
	// host_id defaults to the queue name when the emitter does not
	// override it.
	if ev.HostID == "" {
		ev.HostID = ev.Queue
	}

	res, err := c.engine.Ingest(ctx, &ev)
	switch {
	case errors.Is(err, liveness.ErrInvalidEvent):
		c.deadLetter(ctx, topic, payload, err.Error())
		return
	case errors.Is(err, liveness.ErrEngineBusy):
		// Recoverable: the broker redelivers on the next session.
		c.log.Warn("Engine busy, heartbeat dropped for redelivery", "host", ev.HostID)
		return
	case err != nil:
		c.log.Error("Failed to ingest heartbeat", "host", ev.HostID, "error", err)
		return
	}

	if res.Applied {
		c.accrueUptime(ctx, ev.HostID)
	}
}

// deadLetter parks a rejected message in Redis when configured,
// otherwise it is logged and dropped.
func (c *Collector) deadLetter(ctx context.Context, topic string, payload []byte, reason string) {
	if c.redisClient == nil {
		c.log.Warn("Dropping invalid heartbeat", "topic", topic, "reason", reason)
		return
	}
	if err := c.redisClient.PushDeadLetter(ctx, topic, payload, reason); err != nil {
		c.log.Error("Failed to park dead letter", "topic", topic, "error", err)
	}
}

// accrueUptime adds one heartbeat interval to the host's rollup for
// today and recomputes the day's uptime percentage, capped at 100.
func (c *Collector) accrueUptime(ctx context.Context, hostID string) {
	now := time.Now().UTC()
	midnight := now.Truncate(24 * time.Hour)

	seconds := int64(c.cfg.Heartbeat.Interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	day, err := c.uptimeRepo.GetDay(ctx, hostID, midnight)
	if err != nil {
		c.log.Warn("Failed to read uptime rollup", "host", hostID, "error", err)
		return
	}

	total := seconds
	if day != nil {
		total += day.UpSeconds
	}

	elapsed := int64(now.Sub(midnight).Seconds())
	if elapsed < 1 {
		elapsed = 1
	}
	pct := math.Min(math.Round(float64(total)/float64(elapsed)*100*100)/100, 100)

	if err := c.uptimeRepo.Accrue(ctx, hostID, midnight, seconds, pct, now); err != nil {
		c.log.Warn("Failed to accrue uptime", "host", hostID, "error", err)
	}
}

// refreshGauges recounts host states after each sweep.
func (c *Collector) refreshGauges(ctx context.Context) {
	hosts, err := c.statusRepo.List(ctx)
	if err != nil {
		return
	}
	var up, down int
	for _, h := range hosts {
		switch h.State {
		case domain.HostStateUp:
			up++
		case domain.HostStateDown:
			down++
		}
	}
	metrics.HostsUp.Set(float64(up))
	metrics.HostsDown.Set(float64(down))
}

func queueFromTopic(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
