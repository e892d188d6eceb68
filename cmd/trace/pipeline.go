package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/aiprotocol"
	"github.com/agentsight/agentsight/internal/analyzer"
	"github.com/agentsight/agentsight/internal/analyzer/semantic"
	"github.com/agentsight/agentsight/internal/chunkmerger"
	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/dedup"
	"github.com/agentsight/agentsight/internal/eventmodel"
	"github.com/agentsight/agentsight/internal/httpparser"
	"github.com/agentsight/agentsight/internal/metrics"
	"github.com/agentsight/agentsight/internal/probe"
	"github.com/agentsight/agentsight/internal/sinks"
	"github.com/agentsight/agentsight/internal/sse"
)

// channelCapacity bounds every channel between a runner and the stages
// consuming it. Per spec.md §5, these are backpressure points, not drop
// points: a full channel blocks its producer rather than losing events.
const channelCapacity = 256

// pipeline owns every moving part of one trace invocation: the two probe
// streams, the SSL-side chain (chunk merger -> SSE aggregator -> HTTP
// parser -> analyzer chain), the process-side dedup, and the sinks they
// both fan into.
type pipeline struct {
	cfg    *config.Config
	opts   *options
	logger *slog.Logger
	reg    *metrics.Registry

	fanout  *sinks.Fanout
	server  *sinks.Server
	semantic *semantic.Client

	chain *analyzer.Chain

	sslFilter *analyzer.SSLFilter
}

func newPipeline(cfg *config.Config, opts *options, logger *slog.Logger, reg *metrics.Registry) (*pipeline, error) {
	p := &pipeline{cfg: cfg, opts: opts, logger: logger, reg: reg}

	var sinkList []sinks.Sink
	if !cfg.Sinks.Quiet {
		sinkList = append(sinkList, sinks.NewConsole(os.Stdout, false))
	}
	if cfg.Sinks.File.Enabled {
		f, err := sinks.NewFile(sinks.FileConfig{
			Path:                    cfg.Sinks.File.Path,
			MaxFileSizeBytes:        cfg.Sinks.File.MaxFileSizeBytes,
			MaxFiles:                cfg.Sinks.File.MaxFiles,
			SizeCheckIntervalEvents: cfg.Sinks.File.SizeCheckIntervalEvents,
			CompressRotated:         cfg.Sinks.File.CompressRotated,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("file sink: %w", err)
		}
		sinkList = append(sinkList, f)
	}
	if cfg.Sinks.Server.Enabled {
		broadcast, server, err := sinks.NewBroadcastServerSink(sinks.BroadcastServerConfig{
			Addr:              cfg.Sinks.Server.Addr,
			BroadcastCapacity: cfg.Sinks.Server.BroadcastCapacity,
			RingBufferSize:    cfg.Sinks.Server.RingBufferSize,
			StaticAssetsDir:   cfg.Sinks.Server.StaticAssetsDir,
			RedisAddr:         cfg.Sinks.Server.RedisAddr,
			SocketIOEnabled:   cfg.Sinks.Server.SocketIOEnabled,
			PubSubProjectID:   cfg.Sinks.Server.PubSubProjectID,
			PubSubTopicID:     cfg.Sinks.Server.PubSubTopicID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("server sink: %w", err)
		}
		sinkList = append(sinkList, broadcast)
		p.server = server
	}
	p.fanout = sinks.NewFanout(sinkList...)

	if expr := orExpression(cfg.Chain.SSLFilterExpressions); expr != "" {
		p.sslFilter = analyzer.NewSSLFilter(expr, reg)
	}

	var stages []analyzer.Analyzer
	if cfg.Chain.HTTPParserEnabled {
		stages = append(stages, analyzer.Func{
			FuncName: "http_parser",
			Fn: func(_ context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
				return []eventmodel.Event{httpparser.Analyze(ev)}, nil
			},
		})
		if expr := orExpression(cfg.Chain.HTTPFilterExpressions); expr != "" {
			stages = append(stages, analyzer.NewHTTPFilter(expr, reg))
		}
	}
	aiAnalyzer := aiprotocol.NewAnalyzer(nil)
	stages = append(stages, analyzer.Func{
		FuncName: "ai_protocol",
		Fn: func(_ context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
			return aiAnalyzer.Analyze(ev), nil
		},
	})
	if cfg.Chain.SemanticSidecarAddr != "" {
		client, err := semantic.Dial(cfg.Chain.SemanticSidecarAddr, 0)
		if err != nil {
			logger.Warn("trace: semantic sidecar unreachable, running without it", "addr", cfg.Chain.SemanticSidecarAddr, "error", err)
		} else {
			p.semantic = client
			stages = append(stages, analyzer.NewSemanticStage(client))
		}
	}
	p.chain = analyzer.NewChain(logger, stages...)

	return p, nil
}

func (p *pipeline) Close() {
	if p.fanout != nil {
		if errs := p.fanout.Close(); len(errs) > 0 {
			p.logger.Warn("trace: errors closing sinks", "errors", errs)
		}
	}
	if p.semantic != nil {
		_ = p.semantic.Close()
	}
}

// Run drives both enabled probe streams to completion (cancellation,
// either probe's own exit, or a fatal configuration problem upstream) and
// returns a non-nil error when either stream exited for a reason other
// than context cancellation, per spec.md §7's "probe spawn/exit is fatal"
// error kind.
func (p *pipeline) Run(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	if p.opts.ssl {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(p.runSSLStream(streamCtx))
		}()
	}
	if p.opts.process {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(p.runProcessStream(streamCtx))
		}()
	}
	wg.Wait()
	return firstErr
}

func (p *pipeline) runSSLStream(ctx context.Context) error {
	raw := make(chan eventmodel.Event, channelCapacity)
	merged := make(chan eventmodel.Event, channelCapacity)
	aggregated := make(chan eventmodel.Event, channelCapacity)

	cfg := probe.Config{
		BinaryPath:         p.cfg.Probe.SSLBinaryOverride,
		Source:             eventmodel.SourceSSL,
		PidFilter:          p.cfg.Probe.PidFilter,
		CommFilter:         p.cfg.Probe.CommFilter,
		UidFilter:          p.cfg.Probe.UidFilter,
		Handshake:          p.cfg.Probe.Handshake,
		Hexdump:            p.cfg.Probe.Hexdump,
		Latency:            p.cfg.Probe.Latency,
		GraceTimeout:       time.Duration(p.cfg.Probe.GraceTimeoutMs) * time.Millisecond,
		ScannerBufferBytes: p.cfg.Probe.ScannerBufferBytes,
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultSSLBinary
	}
	runner := probe.New(cfg, raw, p.logger)

	merger := chunkmerger.New(merged, time.Duration(p.cfg.Chain.ChunkMergerIdleMs)*time.Millisecond, p.logger)
	aggregator := sse.New(aggregated, time.Duration(p.cfg.Chain.SSEIdleMs)*time.Millisecond, p.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range raw {
			in := []eventmodel.Event{ev}
			if p.sslFilter != nil {
				out, err := p.sslFilter.Analyze(ctx, ev)
				if err != nil {
					p.logger.Debug("trace: ssl filter error, passing through", "error", err)
					out = in
				}
				in = out
			}
			for _, e := range in {
				if err := merger.Ingest(ctx, e); err != nil {
					p.logger.Debug("trace: chunk merger ingest stopped", "error", err)
				}
			}
		}
		merger.Shutdown()
		close(merged)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range merged {
			handled, err := aggregator.Ingest(ctx, ev)
			if err != nil {
				p.logger.Debug("trace: sse aggregator ingest stopped", "error", err)
				continue
			}
			if !handled {
				p.processFinal(ctx, ev)
			}
		}
		aggregator.Shutdown(context.Background())
		close(aggregated)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range aggregated {
			p.processFinal(ctx, ev)
		}
	}()

	reason, err := runner.Run(ctx)
	close(raw)
	wg.Wait()

	return classifyProbeExit(reason, err)
}

func (p *pipeline) runProcessStream(ctx context.Context) error {
	raw := make(chan eventmodel.Event, channelCapacity)
	out := make(chan eventmodel.Event, channelCapacity)

	cfg := probe.Config{
		BinaryPath:         p.cfg.Probe.ProcBinaryOverride,
		Source:             eventmodel.SourceProcess,
		PidFilter:          p.cfg.Probe.PidFilter,
		CommFilter:         p.cfg.Probe.CommFilter,
		GraceTimeout:       time.Duration(p.cfg.Probe.GraceTimeoutMs) * time.Millisecond,
		ScannerBufferBytes: p.cfg.Probe.ScannerBufferBytes,
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultProcessBinary
	}
	runner := probe.New(cfg, raw, p.logger)

	d := dedup.New(out, time.Duration(p.cfg.Dedup.WindowSeconds)*time.Second, p.cfg.Dedup.TableSize, p.logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range raw {
			d.Ingest(ev)
		}
		d.Shutdown()
		close(out)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range out {
			if errs := p.fanout.Write(ev); len(errs) > 0 {
				p.logger.Debug("trace: sink write errors", "errors", errs)
			}
		}
	}()

	reason, err := runner.Run(ctx)
	close(raw)
	wg.Wait()

	return classifyProbeExit(reason, err)
}

// processFinal runs one SSL-side event (a merged-but-not-SSE body, or a
// completed SSE aggregation) through the analyzer chain and fans out
// whatever survives.
func (p *pipeline) processFinal(ctx context.Context, ev eventmodel.Event) {
	for _, out := range p.chain.Process(ctx, ev) {
		if errs := p.fanout.Write(out); len(errs) > 0 {
			p.logger.Debug("trace: sink write errors", "errors", errs)
		}
	}
}

// classifyProbeExit maps a probe.Runner's result onto the pipeline error
// used for exit-code purposes: cancellation is never an error (spec.md
// §7), any other exit reason propagates as fatal.
func classifyProbeExit(reason probe.ExitReason, err error) error {
	if reason == probe.ExitCanceled {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("probe exited (reason=%d)", reason)
}
