package sinks

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

func newTestServer(t *testing.T) (*Server, *Broadcast) {
	t.Helper()
	b := NewBroadcast(nil, 10, nil)
	t.Cleanup(func() { _ = b.Close() })
	s := NewServer(ServerConfig{Addr: ":0"}, b, nil)
	return s, b
}

func TestServer_HistoryEndpointReturnsEventsSinceCursor(t *testing.T) {
	s, b := newTestServer(t)
	require.NoError(t, b.Write(mkEvent(t, 100)))
	require.NoError(t, b.Write(mkEvent(t, 200)))

	req := httptest.NewRequest(http.MethodGet, "/api/events?since=100", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []eventmodel.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, int64(200), body.Events[0].TimestampMs)
}

func TestServer_HistoryEndpointAppliesLimit(t *testing.T) {
	s, b := newTestServer(t)
	require.NoError(t, b.Write(mkEvent(t, 1)))
	require.NoError(t, b.Write(mkEvent(t, 2)))
	require.NoError(t, b.Write(mkEvent(t, 3)))

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=1", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	var body struct {
		Events []eventmodel.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, int64(3), body.Events[0].TimestampMs)
}

func TestServer_SSEStreamDeliversPublishedEvent(t *testing.T) {
	s, b := newTestServer(t)

	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Write(mkEvent(t, 42)))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ssl\n", line)
}

func TestServer_CORSHeadersSetOnEveryResponse(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
