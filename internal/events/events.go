// Package events is an optional progress-event bus. The transactional core
// never depends on it for correctness; when unconfigured, Bus degrades to a
// no-op so the Manager's behavior is identical with or without a broker.
//
// Adapted from the teacher's Redis-backed pub/sub (internal/registry,
// internal/task used a *redis.Client directly): that client dependency has
// no home in the transactional engine's core data path, so it is given a
// legitimate one here as a side-channel progress feed instead of being
// dropped outright.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Progress is one step or transaction lifecycle notification.
type Progress struct {
	TransactionID int64     `json:"transaction_id"`
	StepOrder     *int      `json:"step_order,omitempty"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

const channel = "pkginstall:progress"

// Bus publishes Progress events. The zero value is a safe no-op bus.
type Bus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing Redis client as a progress bus. A nil
// client is accepted and yields a no-op bus.
func NewRedisBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish emits p on the shared progress channel. Failures are non-fatal:
// the transactional engine's correctness never depends on delivery, so
// errors are returned for logging but never block the caller's retry path.
func (b *Bus) Publish(ctx context.Context, p Progress) error {
	if b == nil || b.client == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("events: marshal progress: %w", err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}
