// Package beacon implements the emitting side: a periodic heartbeat
// publisher a monitored host runs until stopped. It carries no session
// state beyond its own sequence counter, so it is restartable by
// construction.
package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/upfleet/watchtower/internal/core/domain"
)

// Publisher is the transport surface the beacon needs.
type Publisher interface {
	HeartbeatTopic(queue string) string
	Publish(topic string, payload []byte) error
}

// Beacon publishes one HeartbeatEvent per interval.
type Beacon struct {
	queue    string
	hostID   string
	interval time.Duration
	pub      Publisher
	log      *slog.Logger
	now      func() time.Time

	seq    int64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a beacon. hostID defaults to the queue name when empty;
// names are upper-cased so the same host registers identically no
// matter how the flag was typed.
func New(queue, hostID string, interval time.Duration, pub Publisher) *Beacon {
	if hostID == "" {
		hostID = queue
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Beacon{
		queue:    queue,
		hostID:   strings.ToUpper(hostID),
		interval: interval,
		pub:      pub,
		log:      slog.Default().With("component", "beacon", "host", strings.ToUpper(hostID)),
		now:      time.Now,
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (b *Beacon) Start() error {
	if b.ctx != nil {
		return errors.New("beacon is already running")
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run()
	}()

	b.log.Info("beacon started", "queue", b.queue, "interval", b.interval)
	return nil
}

// Stop gracefully stops the beacon.
func (b *Beacon) Stop() error {
	if b.ctx == nil {
		return errors.New("beacon is not running")
	}

	b.cancel()
	b.wg.Wait()

	b.ctx = nil
	b.cancel = nil

	b.log.Info("beacon stopped")
	return nil
}

func (b *Beacon) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.emit(); err != nil {
				b.log.Error("failed to publish heartbeat", "error", err)
			}
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Beacon) emit() error {
	b.seq++
	ev := domain.HeartbeatEvent{
		HostID:    b.hostID,
		Queue:     b.queue,
		EmittedAt: b.now().UTC(),
		Sequence:  b.seq,
	}

	payload, err := json.Marshal(&ev)
	if err != nil {
		return err
	}

	if err := b.pub.Publish(b.pub.HeartbeatTopic(b.queue), payload); err != nil {
		return err
	}
	b.log.Debug("heartbeat published", "sequence", ev.Sequence)
	return nil
}
