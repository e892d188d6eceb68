package sse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// DefaultIdleTimeout bounds how long a connection can sit without a new
// fragment before it is force-flushed with Incomplete set, per the "any
// state -> idle timeout" transition.
const DefaultIdleTimeout = 2 * time.Minute

type phase int

const (
	phaseIdle phase = iota
	phaseStreaming
	phaseClosed
)

type connKey struct {
	Pid      uint32
	Tid      uint32
	Function eventmodel.SSLFunction
}

type connState struct {
	key             connKey
	phase           phase
	originalPid     uint32
	originalComm    string
	originalTs      int64
	lastTs          int64
	earliestStart   int64
	startTime       int64
	messageID       string
	textContent     strings.Builder
	lastUsageJSON   string
	pending         string
	events          []eventmodel.SSEEventRecord
	totalSize       int
	hasMessageStart bool
	timer           *time.Timer
}

// Aggregator implements the C6 per-connection state machine: Idle ->
// Streaming -> Closed, keyed by (pid, tid, function). A connection's state
// is removed once it closes or is flushed, so a later stream on a reused
// slot starts a fresh aggregation, and its ConnectionID carries the
// timestamp of its own first fragment. Fragments that arrive on the same
// key while a connection is still open are folded into it.
type Aggregator struct {
	mu          sync.Mutex
	states      map[connKey]*connState
	idleTimeout time.Duration
	out         chan<- eventmodel.Event
	logger      *slog.Logger
}

func New(out chan<- eventmodel.Event, idleTimeout time.Duration, logger *slog.Logger) *Aggregator {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{states: make(map[connKey]*connState), idleTimeout: idleTimeout, out: out, logger: logger}
}

// Ingest feeds one merged SSL response event through the state machine. If
// the event isn't recognizable as (a continuation of) an event-stream body,
// it is returned unchanged for the caller to forward downstream itself;
// Ingest reports handled=true when it has taken ownership of the event
// (buffered it, and possibly already emitted an aggregated response).
func (a *Aggregator) Ingest(ctx context.Context, ev eventmodel.Event) (handled bool, err error) {
	if ev.Source != eventmodel.SourceSSL && ev.Source != eventmodel.SourceChunkMerger {
		return false, nil
	}
	var payload eventmodel.SSLPayload
	if err := ev.UnmarshalData(&payload); err != nil {
		return false, nil
	}
	raw, err := payload.Bytes()
	if err != nil || len(raw) == 0 {
		return false, nil
	}

	key := connKey{Pid: ev.Pid, Tid: payload.Tid, Function: payload.Function}

	a.mu.Lock()
	st, exists := a.states[key]
	if !exists {
		body, ok := splitHeadersAndBody(raw)
		if !ok {
			a.mu.Unlock()
			return false, nil
		}
		st = &connState{
			key:           key,
			phase:         phaseIdle,
			originalPid:   ev.Pid,
			originalComm:  ev.Comm,
			originalTs:    ev.TimestampMs,
			lastTs:        ev.TimestampMs,
			earliestStart: ev.TimestampMs,
		}
		a.states[key] = st
		a.appendLocked(st, body)
	} else {
		st.lastTs = ev.TimestampMs
		a.appendLocked(st, raw)
	}
	a.rearm(st)

	closed := st.phase == phaseClosed
	if closed {
		delete(a.states, key)
	}
	a.mu.Unlock()

	if closed {
		return true, a.emit(ctx, st, false)
	}
	return true, nil
}

// appendLocked must be called with a.mu held.
func (a *Aggregator) appendLocked(st *connState, raw []byte) {
	st.totalSize += len(raw)
	records, remainder := extractEvents(st.pending + string(raw))
	st.pending = remainder

	for _, rec := range records {
		st.events = append(st.events, rec)

		if isDoneSentinel(rec) {
			st.phase = phaseClosed
			continue
		}

		switch rec.Event {
		case "message_start":
			st.hasMessageStart = true
			st.phase = phaseStreaming
			st.startTime = st.originalTs
			if n, ok := parseUsageTotal(rec.Data); ok {
				st.lastUsageJSON = fmt.Sprintf(`{"output_tokens":%d}`, n)
			}
			st.messageID = extractMessageID(rec.Data)
		case "content_block_delta":
			if text, ok := extractDeltaText(rec.Data); ok {
				st.textContent.WriteString(text)
			}
		case "message_delta":
			if n, ok := parseUsageTotal(rec.Data); ok {
				st.lastUsageJSON = fmt.Sprintf(`{"output_tokens":%d}`, n)
			}
		case "message_stop":
			st.phase = phaseClosed
		}
	}
}

func (a *Aggregator) rearm(st *connState) {
	key := st.key
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(a.idleTimeout, func() {
		a.flushIdle(key)
	})
}

func (a *Aggregator) flushIdle(key connKey) {
	a.mu.Lock()
	st, ok := a.states[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.states, key)
	a.mu.Unlock()

	a.logger.Debug("sse: idle timeout flush", "pid", key.Pid, "tid", key.Tid)
	_ = a.emit(context.Background(), st, true)
}

func (a *Aggregator) emit(ctx context.Context, st *connState, incomplete bool) error {
	endTime := st.lastTs
	startTime := st.startTime
	if startTime == 0 {
		// message_start was never seen (e.g. idle flush before any SSE
		// record arrived); fall back to the connection's first fragment.
		startTime = st.originalTs
	}

	resp := eventmodel.SSEAggregatedResponse{
		ConnectionID:    fmt.Sprintf("%d-%d-%s-%d", st.key.Pid, st.key.Tid, st.key.Function, st.earliestStart),
		MessageID:       st.messageID,
		StartTimeMs:     startTime,
		EndTimeMs:       endTime,
		Function:        st.key.Function,
		Tid:             st.key.Tid,
		JSONContent:     st.lastUsageJSON,
		TextContent:     st.textContent.String(),
		TotalSize:       st.totalSize,
		EventCount:      len(st.events),
		HasMessageStart: st.hasMessageStart,
		SSEEvents:       st.events,
		Incomplete:      incomplete || st.phase != phaseClosed,
	}
	// A stream that arrives as a single fragment has only one timestamp to
	// work with, so StartTimeMs == EndTimeMs and DurationNs comes out 0 —
	// accurate to what we actually observed, even though a response spread
	// across real wall-clock time would show a positive duration.
	resp.DurationNs = (resp.EndTimeMs - resp.StartTimeMs) * int64(time.Millisecond)

	// Envelope timestamp rule: use end_time once multiple deltas have been
	// merged into this response, otherwise keep the original event's
	// timestamp so a single-shot (non-streaming) response isn't stamped
	// with a synthesized time.
	timestamp := st.originalTs
	if resp.EventCount > 1 {
		timestamp = resp.EndTimeMs
	}

	out, err := eventmodel.NewWithTimestamp(timestamp, eventmodel.SourceSSEProcessor, st.originalPid, st.originalComm, resp)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case a.out <- out:
		return nil
	}
}

// Shutdown flushes every in-flight connection as incomplete, mirroring the
// chunk merger's idle flush but run once at pipeline teardown so partial
// streaming responses are still reported to sinks instead of silently lost.
func (a *Aggregator) Shutdown(ctx context.Context) {
	a.mu.Lock()
	states := make([]*connState, 0, len(a.states))
	for key, st := range a.states {
		if st.timer != nil {
			st.timer.Stop()
		}
		states = append(states, st)
		delete(a.states, key)
	}
	a.mu.Unlock()

	for _, st := range states {
		_ = a.emit(ctx, st, true)
	}
}
