package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// Ring is the backing store for GET /api/events?since=. The default
// implementation is an in-process bounded buffer; RedisRing is the
// alternative for a multi-process deployment that needs a shared
// timeline.
type Ring interface {
	Push(ev eventmodel.Event)
	Since(sinceMs int64, limit int) []eventmodel.Event
}

// memRing is a fixed-capacity circular buffer of the most recent events.
type memRing struct {
	mu   sync.RWMutex
	buf  []eventmodel.Event
	next int
	full bool
}

func newMemRing(capacity int) *memRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memRing{buf: make([]eventmodel.Event, capacity)}
}

func (r *memRing) Push(ev eventmodel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Since returns events with TimestampMs > sinceMs, oldest first, capped at
// limit (0 means unlimited).
func (r *memRing) Since(sinceMs int64, limit int) []eventmodel.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	total := len(r.buf)
	if !r.full {
		total = r.next
		n = 0
	}

	var out []eventmodel.Event
	for i := 0; i < total; i++ {
		idx := (n + i) % len(r.buf)
		ev := r.buf[idx]
		if ev.TimestampMs > sinceMs {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RedisRing stores the timeline in a capped Redis list, for deployments
// where multiple trace processes must share one /api/events timeline.
// Grounded on the teacher's internal/infra.GoRedisAdapter wrapping of
// github.com/redis/go-redis/v9.
type RedisRing struct {
	rdb      *redis.Client
	key      string
	capacity int64
}

func NewRedisRing(addr, key string, capacity int) (*RedisRing, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("sinks: redis ping %s: %w", addr, err)
	}
	if capacity <= 0 {
		capacity = 1000
	}
	if key == "" {
		key = "agentsight:events"
	}
	return &RedisRing{rdb: rdb, key: key, capacity: int64(capacity)}, nil
}

func (r *RedisRing) Push(ev eventmodel.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx := context.Background()
	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, r.key, raw)
	pipe.LTrim(ctx, r.key, -r.capacity, -1)
	_, _ = pipe.Exec(ctx)
}

func (r *RedisRing) Since(sinceMs int64, limit int) []eventmodel.Event {
	ctx := context.Background()
	vals, err := r.rdb.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil
	}
	var out []eventmodel.Event
	for _, v := range vals {
		var ev eventmodel.Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		if ev.TimestampMs > sinceMs {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *RedisRing) Close() error {
	return r.rdb.Close()
}
