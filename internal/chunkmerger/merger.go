package chunkmerger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// DefaultIdleWindow is the bounded idle period after which a buffer with no
// new fragments is flushed as a best-effort merged event, comparable to a
// typical HTTP keep-alive idle timeout.
const DefaultIdleWindow = 60 * time.Second

type buffer struct {
	key       Key
	kind      messageKind
	data      []byte
	firstTs   int64
	firstPid  uint32
	firstComm string
	fragments int
	timer     *time.Timer
}

type shard struct {
	mu      sync.Mutex
	buffers map[Key]*buffer
}

// Merger reassembles SSL fragments per Key (C4). Each key's buffer is owned
// exclusively by the shard mutex guarding it — at most shardCount buffers
// can be mutated concurrently, and no buffer is ever touched by more than
// one goroutine at a time.
type Merger struct {
	shards     [shardCount]*shard
	idleWindow time.Duration
	out        chan<- eventmodel.Event
	logger     *slog.Logger
}

// New constructs a Merger that writes merged and passed-through events to
// out. idleWindow <= 0 selects DefaultIdleWindow.
func New(out chan<- eventmodel.Event, idleWindow time.Duration, logger *slog.Logger) *Merger {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Merger{out: out, idleWindow: idleWindow, logger: logger}
	for i := range m.shards {
		m.shards[i] = &shard{buffers: make(map[Key]*buffer)}
	}
	return m
}

// Ingest appends ev's data to its keyed buffer (or passes it through
// unrecognized) and emits any complete merged messages. It blocks sending
// to out, so out should be sized to apply backpressure rather than drop.
func (m *Merger) Ingest(ctx context.Context, ev eventmodel.Event) error {
	var payload eventmodel.SSLPayload
	if err := ev.UnmarshalData(&payload); err != nil {
		return m.emit(ctx, ev)
	}
	raw, err := payload.Bytes()
	if err != nil || len(raw) == 0 {
		return m.emit(ctx, ev)
	}

	key := Key{Pid: ev.Pid, Tid: payload.Tid, Function: payload.Function}
	sh := m.shards[shardIndex(key)]

	sh.mu.Lock()
	buf, exists := sh.buffers[key]
	if !exists {
		kind := classify(raw)
		if kind == kindUnknown {
			sh.mu.Unlock()
			return m.emit(ctx, ev)
		}
		buf = &buffer{key: key, kind: kind, firstTs: ev.TimestampMs, firstPid: ev.Pid, firstComm: ev.Comm}
		sh.buffers[key] = buf
	}
	buf.data = append(buf.data, raw...)
	buf.fragments++
	m.rearm(sh, buf)

	merged := m.drain(buf)
	if len(buf.data) == 0 && buf.timer != nil {
		buf.timer.Stop()
	}
	if len(buf.data) == 0 {
		delete(sh.buffers, key)
	}
	sh.mu.Unlock()

	for _, out := range merged {
		if err := m.emit(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// drain pulls as many complete messages as are present (pipelined
// request/response bursts), leaving any trailing partial bytes in buf.data
// for the next fragment. Must be called with the owning shard locked.
func (m *Merger) drain(buf *buffer) []eventmodel.Event {
	var merged []eventmodel.Event
	for {
		end, ok := findBoundary(buf.data, buf.kind)
		if !ok {
			return merged
		}
		msg := append([]byte(nil), buf.data[:end]...)
		merged = append(merged, m.mergedEvent(buf, msg, false, buf.fragments > 1))
		buf.fragments = 0
		buf.data = buf.data[end:]
		if len(buf.data) == 0 {
			return merged
		}
		buf.kind = classify(buf.data)
		if buf.kind == kindUnknown {
			// Trailing bytes don't open a recognizable message; pass them
			// through unchanged rather than holding them indefinitely.
			merged = append(merged, m.mergedEvent(buf, buf.data, false, false))
			buf.data = nil
			return merged
		}
	}
}

// mergedEvent builds the emitted event for one reassembled (or
// passed-through) message. merged distinguishes a message that actually
// spanned more than one ingested fragment — tagged SourceChunkMerger per
// spec §3/§4.5 — from one that arrived whole in a single fragment, which
// keeps the original SourceSSL tag since nothing was reassembled.
func (m *Merger) mergedEvent(buf *buffer, data []byte, truncated, merged bool) eventmodel.Event {
	payload := eventmodel.SSLPayload{
		Function:  buf.key.Function,
		Len:       len(data),
		Data:      string(data),
		Tid:       buf.key.Tid,
		Truncated: truncated,
	}
	source := eventmodel.SourceSSL
	if merged {
		source = eventmodel.SourceChunkMerger
	}
	ts := buf.firstTs
	ev, err := eventmodel.NewWithTimestamp(ts, source, buf.firstPid, buf.firstComm, payload)
	if err != nil {
		m.logger.Warn("chunkmerger: failed to build merged event", "err", err)
	}
	return ev
}

func (m *Merger) rearm(sh *shard, buf *buffer) {
	key := buf.key
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(m.idleWindow, func() {
		m.flushIdle(sh, key)
	})
}

func (m *Merger) flushIdle(sh *shard, key Key) {
	sh.mu.Lock()
	buf, ok := sh.buffers[key]
	if !ok || len(buf.data) == 0 {
		if ok {
			delete(sh.buffers, key)
		}
		sh.mu.Unlock()
		return
	}
	ev := m.mergedEvent(buf, buf.data, true, buf.fragments > 1)
	delete(sh.buffers, key)
	sh.mu.Unlock()

	m.logger.Debug("chunkmerger: idle flush", "pid", key.Pid, "tid", key.Tid, "function", key.Function)
	_ = m.emit(context.Background(), ev)
}

func (m *Merger) emit(ctx context.Context, ev eventmodel.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.out <- ev:
		return nil
	}
}

// Shutdown discards every partial buffer without flushing, per the
// cancellation invariant: a chunk-merger buffer still mid-message at
// shutdown is abandoned, not emitted.
func (m *Merger) Shutdown() {
	for _, sh := range m.shards {
		sh.mu.Lock()
		for key, buf := range sh.buffers {
			if buf.timer != nil {
				buf.timer.Stop()
			}
			delete(sh.buffers, key)
		}
		sh.mu.Unlock()
	}
}
