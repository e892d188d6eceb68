package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// Broadcast is the C8 broadcast/server sink's core: every Write pushes the
// event onto a bounded ring (backing GET /api/events?since=) and fans it
// out, non-blocking, to every live subscriber channel. A slow subscriber
// drops the event for itself — select/default, never a blocking send —
// the rest of the subscribers and the chain feeding Write are unaffected.
// Grounded directly on the teacher's internal/events.EventBus.Publish.
type Broadcast struct {
	mu   sync.RWMutex
	subs map[chan eventmodel.Event]string // channel -> subscriber id, for logging only
	capacity int

	ring Ring

	pubsubTopic *pubsub.Topic
	logger      *slog.Logger
}

func NewBroadcast(ring Ring, capacity int, logger *slog.Logger) *Broadcast {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1000
	}
	if ring == nil {
		ring = newMemRing(capacity)
	}
	return &Broadcast{
		subs:     make(map[chan eventmodel.Event]string),
		capacity: capacity,
		ring:     ring,
		logger:   logger,
	}
}

// WithPubSub attaches a durable outbound relay: every Write is also
// published to a Cloud Pub/Sub topic, best-effort, without changing the
// core's at-most-once in-process guarantee. Grounded on the teacher's
// PubSubEventBus.publishToPubSub — non-blocking publish, result checked
// in a goroutine so a slow publish never adds latency to the hot path.
func (b *Broadcast) WithPubSub(projectID, topicID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("sinks: pubsub.NewClient: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("sinks: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return fmt.Errorf("sinks: CreateTopic: %w", err)
		}
	}
	b.pubsubTopic = topic
	return nil
}

// Subscribe returns a channel receiving every future event, buffered to
// Broadcast's capacity. Callers must Unsubscribe when done. Each
// subscriber is stamped with a uuid for log correlation only — it plays
// no part in delivery or ordering.
func (b *Broadcast) Subscribe() chan eventmodel.Event {
	ch := make(chan eventmodel.Event, b.capacity)
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[ch] = id
	b.mu.Unlock()
	b.logger.Debug("sinks: subscriber connected", "subscriber_id", id)
	return ch
}

func (b *Broadcast) Unsubscribe(ch chan eventmodel.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.subs[ch]; ok {
		b.logger.Debug("sinks: subscriber disconnected", "subscriber_id", id)
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broadcast) Write(ev eventmodel.Event) error {
	b.ring.Push(ev)

	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow; it drops this event, nobody else is
			// affected.
		}
	}
	b.mu.RUnlock()

	if b.pubsubTopic != nil {
		b.publishToPubSub(ev)
	}
	return nil
}

func (b *Broadcast) publishToPubSub(ev eventmodel.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("sinks: failed to marshal event for pubsub", "error", err)
		return
	}
	result := b.pubsubTopic.Publish(context.Background(), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"source": ev.Source,
		},
	})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			b.logger.Error("sinks: pubsub publish failed", "error", err)
		}
	}()
}

// Since delegates to the backing ring for the REST history endpoint.
func (b *Broadcast) Since(sinceMs int64, limit int) []eventmodel.Event {
	return b.ring.Since(sinceMs, limit)
}

func (b *Broadcast) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
	if b.pubsubTopic != nil {
		b.pubsubTopic.Stop()
	}
	return nil
}
