package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe remembers applied events in redis so replays inside the TTL window
// are skipped. The bus is at-least-once and every effect downstream is
// idempotent, so dedupe is an optimization, not a correctness requirement;
// a nil client disables it and every event is processed.
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupe connects to redis. An empty address disables deduplication.
func NewDedupe(addr string, ttl time.Duration) *Dedupe {
	if addr == "" {
		return &Dedupe{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dedupe{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// NewDedupeWithClient wires an explicit client, used by tests.
func NewDedupeWithClient(client *redis.Client, ttl time.Duration) *Dedupe {
	return &Dedupe{client: client, ttl: ttl}
}

// Close releases the redis connection.
func (d *Dedupe) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func eventKey(entityID string, version int, op string) string {
	return fmt.Sprintf("notebase:event:%s:%d:%s", entityID, version, op)
}

// Seen reports whether the event was already applied. Redis trouble counts
// as not seen; processing again is safe.
func (d *Dedupe) Seen(ctx context.Context, entityID string, version int, op string) bool {
	if d.client == nil {
		return false
	}
	n, err := d.client.Exists(ctx, eventKey(entityID, version, op)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records a successfully applied event for the TTL window.
func (d *Dedupe) Mark(ctx context.Context, entityID string, version int, op string) {
	if d.client == nil {
		return
	}
	d.client.SetNX(ctx, eventKey(entityID, version, op), time.Now().UnixMilli(), d.ttl)
}
