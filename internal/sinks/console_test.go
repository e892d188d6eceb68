package sinks

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

func TestConsole_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	ev, err := eventmodel.New(eventmodel.SourceSSL, 1, "curl", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, c.Write(ev))

	var decoded eventmodel.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, ev.Pid, decoded.Pid)
}

func TestConsole_QuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	ev, err := eventmodel.New(eventmodel.SourceSSL, 1, "curl", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, c.Write(ev))

	assert.Empty(t, buf.Bytes())
}
