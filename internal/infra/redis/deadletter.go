package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const deadLetterKey = "deadletter:heartbeats"

// DeadLetter is one rejected heartbeat message parked for inspection.
type DeadLetter struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Reason     string    `json:"reason"`
	ReceivedAt time.Time `json:"received_at"`
}

// PushDeadLetter parks a rejected message. Entries are never retried by
// the collector; they exist so an operator can see what a misbehaving
// emitter sent.
func (c *Client) PushDeadLetter(ctx context.Context, topic string, payload []byte, reason string) error {
	entry := DeadLetter{
		ID:         uuid.New().String(),
		Topic:      topic,
		Payload:    string(payload),
		Reason:     reason,
		ReceivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := c.rdb.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// DeadLetterCount returns the number of parked messages.
func (c *Client) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, deadLetterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("llen failed: %w", err)
	}
	return n, nil
}

// ListDeadLetters returns up to limit parked messages, newest first.
func (c *Client) ListDeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	raw, err := c.rdb.LRange(ctx, deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var entry DeadLetter
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
