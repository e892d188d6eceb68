package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

func rawSSLEvent(t *testing.T, pid uint32, comm string, ts int64, tid uint32, data string) eventmodel.Event {
	t.Helper()
	ev, err := eventmodel.NewWithTimestamp(ts, eventmodel.SourceSSL, pid, comm, eventmodel.SSLPayload{
		Function: eventmodel.SSLFunctionRead,
		Data:     data,
		Len:      len(data),
		Tid:      tid,
	})
	require.NoError(t, err)
	return ev
}

func TestAggregator_IgnoresNonEventStreamResponses(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, time.Minute, nil)

	ev := rawSSLEvent(t, 1, "node", 100, 1, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{}")
	handled, err := agg.Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, handled, "a non-SSE response must be left for the caller to forward")
}

func TestAggregator_AggregatesFullStreamInOneFragment(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, time.Minute, nil)

	body := "" +
		"event: message_start\ndata: {\"message\":{\"id\":\"msg_1\"}}\n\n" +
		"event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
		"event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
		"event: message_stop\ndata: {}\n\n"

	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\n\r\n" + body
	ev := rawSSLEvent(t, 5, "python3", 1000, 2, raw)

	handled, err := agg.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, handled)
	require.Len(t, out, 1)

	aggregated := <-out
	assert.Equal(t, eventmodel.SourceSSEProcessor, aggregated.Source)
	assert.Equal(t, uint32(5), aggregated.Pid)
	assert.Equal(t, "python3", aggregated.Comm)

	var resp eventmodel.SSEAggregatedResponse
	require.NoError(t, aggregated.UnmarshalData(&resp))
	assert.Equal(t, "msg_1", resp.MessageID)
	assert.Equal(t, "Hello", resp.TextContent)
	assert.True(t, resp.HasMessageStart)
	assert.False(t, resp.Incomplete)
	assert.Equal(t, 4, resp.EventCount)
	// A whole stream arriving in one fragment carries only one real
	// timestamp, so start and end coincide and DurationNs is 0 rather than
	// positive — the accurate reading for what was actually observed.
	assert.Zero(t, resp.DurationNs)
}

func TestAggregator_AggregatesDeltaWithoutTypeTag(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, time.Minute, nil)

	// No "type" field on delta — some producers omit it. Appending keys on
	// delta.text being present, not on a "text_delta" tag.
	body := "" +
		"event: message_start\ndata: {\"message\":{\"id\":\"msg_3\"}}\n\n" +
		"event: content_block_delta\ndata: {\"delta\":{\"text\":\"Hi\"}}\n\n" +
		"event: message_stop\ndata: {}\n\n"

	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\n\r\n" + body
	ev := rawSSLEvent(t, 5, "python3", 1000, 2, raw)

	handled, err := agg.Ingest(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, handled)
	require.Len(t, out, 1)

	aggregated := <-out
	var resp eventmodel.SSEAggregatedResponse
	require.NoError(t, aggregated.UnmarshalData(&resp))
	assert.Equal(t, "Hi", resp.TextContent)
}

func TestAggregator_DoneSentinelClosesStream(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, time.Minute, nil)

	body := "event: message_start\ndata: {\"message\":{\"id\":\"msg_2\"}}\n\n" +
		"data: [DONE]\n\n"
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\n\r\n" + body

	_, err := agg.Ingest(context.Background(), rawSSLEvent(t, 9, "node", 50, 3, raw))
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestAggregator_SpansMultipleFragments(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, time.Minute, nil)
	ctx := context.Background()

	first := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\n\r\n" +
		"event: message_start\ndata: {\"message\":{\"id\":\"msg_3\"}}\n\n"
	handled, err := agg.Ingest(ctx, rawSSLEvent(t, 3, "curl", 200, 4, first))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Len(t, out, 0)

	second := "event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\"world\"}}\n\n" +
		"event: message_stop\ndata: {}\n\n"
	_, err = agg.Ingest(ctx, rawSSLEvent(t, 3, "curl", 260, 4, second))
	require.NoError(t, err)
	require.Len(t, out, 1)

	aggregated := <-out
	var resp eventmodel.SSEAggregatedResponse
	require.NoError(t, aggregated.UnmarshalData(&resp))
	assert.Equal(t, "world", resp.TextContent)
	assert.Equal(t, int64(260), resp.EndTimeMs, "end_time should reflect the last fragment's timestamp")
}

func TestAggregator_IdleTimeoutFlushesIncomplete(t *testing.T) {
	out := make(chan eventmodel.Event, 1)
	agg := New(out, 20*time.Millisecond, nil)

	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\n\r\n" +
		"event: message_start\ndata: {\"message\":{\"id\":\"msg_4\"}}\n\n"
	_, err := agg.Ingest(context.Background(), rawSSLEvent(t, 7, "node", 5, 1, raw))
	require.NoError(t, err)

	select {
	case ev := <-out:
		var resp eventmodel.SSEAggregatedResponse
		require.NoError(t, ev.UnmarshalData(&resp))
		assert.True(t, resp.Incomplete)
	case <-time.After(time.Second):
		t.Fatal("expected idle flush")
	}
}
