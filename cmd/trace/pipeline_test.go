package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/metrics"
	"github.com/agentsight/agentsight/internal/probe"
)

func TestClassifyProbeExit_CancellationIsNeverAnError(t *testing.T) {
	assert.NoError(t, classifyProbeExit(probe.ExitCanceled, assert.AnError))
}

func TestClassifyProbeExit_NonZeroExitPropagatesAsError(t *testing.T) {
	err := classifyProbeExit(probe.ExitNonZero, assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestClassifyProbeExit_NormalExitIsStillReportedFatal(t *testing.T) {
	// Per spec.md §7, a probe exiting on its own is fatal to the pipeline
	// even when the exit itself was clean (err == nil).
	err := classifyProbeExit(probe.ExitNormal, nil)
	assert.Error(t, err)
}

// fakeProbeLine is one newline-delimited JSON event in the wire protocol
// internal/probe.Runner expects on a probe's stdout.
type fakeProbeLine struct {
	Timestamp int64                  `json:"timestamp"`
	Pid       uint32                 `json:"pid"`
	Comm      string                 `json:"comm"`
	Data      map[string]interface{} `json:"data"`
}

// installFakeProbe writes an executable shell script named binName into a
// fresh temp directory, prepends that directory to PATH for the duration
// of the test, and returns once the real sslsniff/process binaries would
// be looked up by exec.Command's bare-name (no slash) resolution.
func installFakeProbe(t *testing.T, binName string, lines ...fakeProbeLine) {
	t.Helper()
	dir := t.TempDir()

	script := "#!/bin/sh\ncat <<'FIXTUREEOF'\n"
	for _, line := range lines {
		encoded, err := json.Marshal(line)
		require.NoError(t, err)
		script += string(encoded) + "\n"
	}
	script += "FIXTUREEOF\n"

	path := filepath.Join(dir, binName)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestPipeline_SSLStreamParsesHTTPRequestEndToEnd(t *testing.T) {
	installFakeProbe(t, "sslsniff", fakeProbeLine{
		Timestamp: 1000,
		Pid:       7,
		Comm:      "curl",
		Data: map[string]interface{}{
			"function": "WRITE/SEND",
			"len":      79,
			"data":     "POST /v1/messages HTTP/1.1\r\nHost: api.anthropic.com\r\nContent-Length: 5\r\n\r\nhello",
		},
	})

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Chain.HTTPParserEnabled = true
	cfg.Sinks.Quiet = true
	cfg.Sinks.File.Enabled = true
	cfg.Sinks.File.Path = filepath.Join(t.TempDir(), "trace.log")

	opts := &options{ssl: true, process: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewUnregistered()

	p, err := newPipeline(cfg, opts, logger, reg)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = p.Run(ctx) // the fixture probe exits after one line; that's a fatal exit reason, expected

	contents, err := os.ReadFile(cfg.Sinks.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"source":"http_parser"`)
	assert.Contains(t, string(contents), `"method":"POST"`)
	assert.Contains(t, string(contents), `"body":"hello"`)
}

func TestPipeline_ProcessStreamDedupsFileOpensEndToEnd(t *testing.T) {
	installFakeProbe(t, "process", fakeProbeLine{
		Timestamp: 1000,
		Pid:       9,
		Comm:      "bash",
		Data: map[string]interface{}{
			"event":    "FILE_OPEN",
			"filepath": "/etc/hosts",
			"flags":    0,
		},
	})

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Sinks.Quiet = true
	cfg.Sinks.File.Enabled = true
	cfg.Sinks.File.Path = filepath.Join(t.TempDir(), "trace.log")

	opts := &options{ssl: false, process: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewUnregistered()

	p, err := newPipeline(cfg, opts, logger, reg)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = p.Run(ctx)

	contents, err := os.ReadFile(cfg.Sinks.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"filepath":"/etc/hosts"`)
	assert.Contains(t, string(contents), `"count":1`)
}
