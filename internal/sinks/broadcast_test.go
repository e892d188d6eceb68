package sinks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcast(nil, 10, nil)
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()

	ev := mkEvent(t, 1)
	require.NoError(t, b.Write(ev))

	select {
	case got := <-a:
		assert.Equal(t, ev.TimestampMs, got.TimestampMs)
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}
	select {
	case got := <-c:
		assert.Equal(t, ev.TimestampMs, got.TimestampMs)
	case <-time.After(time.Second):
		t.Fatal("subscriber c did not receive event")
	}
}

func TestBroadcast_SlowSubscriberDropsWithoutBlockingOthers(t *testing.T) {
	b := NewBroadcast(nil, 1, nil)
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	// Fill both subscribers' buffers (capacity 1) with the first event,
	// then drain only fast before the second publish — so the second
	// publish finds slow's buffer still full (drops) and fast's buffer
	// empty (delivers).
	require.NoError(t, b.Write(mkEvent(t, 1)))
	<-fast
	require.NoError(t, b.Write(mkEvent(t, 2)))

	select {
	case got := <-fast:
		assert.Equal(t, int64(2), got.TimestampMs)
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive the second event")
	}

	// slow still only has the first event queued; the second was dropped.
	got := <-slow
	assert.Equal(t, int64(1), got.TimestampMs)
	select {
	case <-slow:
		t.Fatal("slow subscriber should have dropped the second event")
	default:
	}
}

func TestBroadcast_BacksHistoryFromRing(t *testing.T) {
	b := NewBroadcast(nil, 10, nil)
	defer b.Close()

	require.NoError(t, b.Write(mkEvent(t, 100)))
	require.NoError(t, b.Write(mkEvent(t, 200)))

	out := b.Since(100, 0)
	require.Len(t, out, 1)
	assert.Equal(t, int64(200), out[0].TimestampMs)
}

func TestBroadcast_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcast(nil, 10, nil)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}
