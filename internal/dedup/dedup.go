// Package dedup implements the probe-side file-open aggregation contract
// described for the process probe. The real probe binary is an external
// collaborator out of scope for this repository; this package provides a
// directly testable reference implementation of the same contract, which
// cmd/trace applies to the process probe's events so the rest of the
// pipeline can be exercised end-to-end without a real eBPF probe or root
// privileges. The fixture probe (internal/probe/fixtureprobe) does not use
// it.
package dedup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

const (
	// DefaultWindow is the sliding aggregation window for repeated
	// FILE_OPEN events from the same (pid, filepath, flags).
	DefaultWindow = 60 * time.Second
	// DefaultTableSize bounds the number of concurrently tracked keys.
	DefaultTableSize = 1024
)

type key struct {
	pid      uint32
	filepath string
	flags    int
}

type entry struct {
	count       int
	windowStart int64 // ms, from the first event in the window
	comm        string
	timer       *time.Timer
}

// Dedup aggregates FILE_OPEN process events per (pid, filepath, flags) over
// a sliding window, per spec:
//   - first occurrence in a window is emitted immediately with count=1
//   - subsequent duplicates within the window increment a counter silently
//   - window expiry emits one aggregated event with count=N, window_expired=true
//   - a process exit flushes all of that pid's pending aggregations with
//     reason="process_exit"
//   - when the table is full, the next new key is emitted immediately as
//     count=1 (no eviction, no blocking) and capacity exhaustion is logged
type Dedup struct {
	mu        sync.Mutex
	table     map[key]*entry
	window    time.Duration
	maxTable  int
	out       chan<- eventmodel.Event
	logger    *slog.Logger
}

func New(out chan<- eventmodel.Event, window time.Duration, maxTable int, logger *slog.Logger) *Dedup {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxTable <= 0 {
		maxTable = DefaultTableSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dedup{
		table:    make(map[key]*entry),
		window:   window,
		maxTable: maxTable,
		out:      out,
		logger:   logger,
	}
}

// Ingest processes one process-stream Event. Only FILE_OPEN payloads
// participate in aggregation; every other ProcessEventKind (and an EXIT,
// which also triggers a flush) passes straight through to out. Sends to out
// are made after the table lock is released, but they block until out
// accepts the event, so callers should give out enough buffer to absorb
// bursts, matching the bounded-channel backpressure model used elsewhere in
// the pipeline.
func (d *Dedup) Ingest(ev eventmodel.Event) {
	if ev.Source != eventmodel.SourceProcess {
		d.out <- ev
		return
	}

	var payload eventmodel.ProcessPayload
	if err := ev.UnmarshalData(&payload); err != nil {
		d.out <- ev
		return
	}

	if payload.Event == eventmodel.ProcessEventExit {
		d.flushPid(ev.Pid, "process_exit")
		d.out <- ev
		return
	}

	if payload.Event != eventmodel.ProcessEventFileOpen {
		d.out <- ev
		return
	}

	d.ingestFileOpen(ev, payload)
}

func (d *Dedup) ingestFileOpen(ev eventmodel.Event, payload eventmodel.ProcessPayload) {
	k := key{pid: ev.Pid, filepath: payload.Filepath, flags: payload.Flags}

	d.mu.Lock()
	e, exists := d.table[k]
	if !exists {
		if len(d.table) >= d.maxTable {
			d.mu.Unlock()
			d.logger.Warn("dedup table full, emitting immediately without aggregation",
				"pid", ev.Pid, "filepath", payload.Filepath, "flags", payload.Flags,
				"table_size", d.maxTable)
			d.emitImmediate(ev, payload)
			return
		}
		e = &entry{count: 1, windowStart: ev.TimestampMs, comm: ev.Comm}
		e.timer = time.AfterFunc(d.window, func() { d.expire(k) })
		d.table[k] = e
		d.mu.Unlock()

		d.emitImmediate(ev, payload)
		return
	}

	e.count++
	d.mu.Unlock()
}

// emitImmediate is the first-occurrence case: count=1, emitted as-is.
func (d *Dedup) emitImmediate(ev eventmodel.Event, payload eventmodel.ProcessPayload) {
	payload.Count = 1
	out, err := eventmodel.NewWithTimestamp(ev.TimestampMs, ev.Source, ev.Pid, ev.Comm, payload)
	if err != nil {
		d.logger.Warn("dedup: failed to re-encode first-occurrence event", "error", err)
		d.out <- ev
		return
	}
	d.out <- out
}

func (d *Dedup) expire(k key) {
	d.mu.Lock()
	e, exists := d.table[k]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.table, k)
	d.mu.Unlock()

	if e.count <= 1 {
		// Sole occurrence was already emitted immediately; nothing pending.
		return
	}
	d.emitAggregate(k, e, true, "")
}

// flushPid emits every pending aggregation belonging to pid with the given
// reason (spec: "process_exit"), discarding their idle timers.
func (d *Dedup) flushPid(pid uint32, reason string) {
	d.mu.Lock()
	var flushed []struct {
		k key
		e *entry
	}
	for k, e := range d.table {
		if k.pid != pid {
			continue
		}
		e.timer.Stop()
		delete(d.table, k)
		if e.count > 1 {
			flushed = append(flushed, struct {
				k key
				e *entry
			}{k, e})
		}
	}
	d.mu.Unlock()

	for _, f := range flushed {
		d.emitAggregate(f.k, f.e, false, reason)
	}
}

func (d *Dedup) emitAggregate(k key, e *entry, windowExpired bool, reason string) {
	payload := eventmodel.ProcessPayload{
		Event:         eventmodel.ProcessEventFileOpen,
		Filepath:      k.filepath,
		Flags:         k.flags,
		Count:         e.count,
		WindowExpired: windowExpired,
		Reason:        reason,
	}
	out, err := eventmodel.NewWithTimestamp(e.windowStart, eventmodel.SourceProcess, k.pid, e.comm, payload)
	if err != nil {
		d.logger.Warn("dedup: failed to encode aggregate event", "error", err)
		return
	}
	d.out <- out
}

// Shutdown flushes every pending aggregation as a window expiry, for use at
// pipeline teardown when no further process-exit event will arrive for the
// owning pids.
func (d *Dedup) Shutdown() {
	d.mu.Lock()
	entries := make(map[key]*entry, len(d.table))
	for k, e := range d.table {
		e.timer.Stop()
		entries[k] = e
	}
	d.table = make(map[key]*entry)
	d.mu.Unlock()

	for k, e := range entries {
		if e.count > 1 {
			d.emitAggregate(k, e, true, "")
		}
	}
}
