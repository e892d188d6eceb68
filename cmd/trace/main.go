// Command trace is the core CLI named in spec.md §6: it composes the probe
// runners, the chunk merger / SSE aggregator / HTTP parser / analyzer
// chain, and the sinks into one running pipeline, and maps the result back
// to the documented exit codes (0 normal, 1 configuration error, 2 probe
// exit, 130 SIGINT).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/logging"
	"github.com/agentsight/agentsight/internal/metrics"
)

const (
	exitNormal      = 0
	exitConfigError = 1
	exitProbeExit   = 2
	exitInterrupt   = 130

	defaultSSLBinary     = "sslsniff"
	defaultProcessBinary = "process"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, explicit, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trace:", err)
		return exitConfigError
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trace: loading config:", err)
		return exitConfigError
	}
	applyFlagOverrides(cfg, opts, explicit)

	logger := logging.New(logging.Options{Verbose: opts.verbose || cfg.Logging.Verbose})
	reg := metrics.NewUnregistered()

	if !opts.ssl && !opts.process {
		fmt.Fprintln(os.Stderr, "trace: at least one of --ssl or --process must be enabled")
		return exitConfigError
	}

	p, err := newPipeline(cfg, opts, logger, reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trace: building pipeline:", err)
		return exitConfigError
	}
	defer p.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode := make(chan int, 1)
	go func() {
		select {
		case sig := <-sigCh:
			cancel()
			if sig == os.Interrupt {
				exitCode <- exitInterrupt
			} else {
				exitCode <- exitNormal
			}
		case <-ctx.Done():
		}
	}()

	if p.server != nil {
		go func() {
			if srvErr := p.server.ListenAndServe(); srvErr != nil {
				logger.Error("trace: server stopped", "error", srvErr)
			}
		}()
		defer p.server.Shutdown()
	}

	probeErr := p.Run(ctx)

	select {
	case code := <-exitCode:
		return code
	default:
	}

	if probeErr != nil {
		logger.Error("trace: pipeline stopped", "error", probeErr)
		return exitProbeExit
	}
	return exitNormal
}

func applyFlagOverrides(cfg *config.Config, opts *options, explicit map[string]bool) {
	if explicit["c"] {
		cfg.Probe.CommFilter = opts.commFilter
	}
	if explicit["p"] {
		cfg.Probe.PidFilter = opts.pidFilter
	}
	if explicit["ssl-filter"] {
		cfg.Chain.SSLFilterExpressions = opts.sslFilters
	}
	if explicit["http-parser"] {
		cfg.Chain.HTTPParserEnabled = opts.httpParser
	}
	if explicit["http-filter"] {
		cfg.Chain.HTTPFilterExpressions = opts.httpFilters
	}
	if explicit["log-file"] {
		cfg.Sinks.File.Enabled = true
		cfg.Sinks.File.Path = opts.logFile
	}
	if explicit["server"] {
		cfg.Sinks.Server.Enabled = opts.serverEnabled
	}
	if explicit["server-addr"] {
		cfg.Sinks.Server.Addr = opts.serverAddr
	}
	if explicit["quiet"] {
		cfg.Sinks.Quiet = opts.quiet
	}
	if explicit["verbose"] {
		cfg.Logging.Verbose = opts.verbose
	}
	if cfg.Sinks.Server.Enabled && cfg.Sinks.Server.Addr == "" {
		cfg.Sinks.Server.Addr = ":7777"
	}
}
