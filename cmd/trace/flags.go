package main

import (
	"flag"
	"fmt"
	"strings"
)

// stringSlice accumulates repeated occurrences of a flag (-c COMM -c COMM2),
// the idiom stdlib flag asks callers to provide for itself via flag.Value.
type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// options is the CLI surface from spec.md §6, parsed once in main and
// layered on top of whatever internal/config.Load already produced from a
// config file and the environment — flags always win.
type options struct {
	configPath string

	ssl     bool
	process bool

	commFilter stringSlice
	pidFilter  int

	sslFilters  stringSlice
	httpParser  bool
	httpFilters stringSlice

	logFile string

	serverEnabled bool
	serverAddr    string

	quiet   bool
	verbose bool
}

// parseFlags defines and parses the trace command's flags. explicit
// records which flag names were actually passed, so applyFlagOverrides can
// tell "user said --quiet=false" apart from "user didn't mention --quiet
// at all and the config file's value should stand."
func parseFlags(args []string) (*options, map[string]bool, error) {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "optional YAML config file")

	fs.BoolVar(&opts.ssl, "ssl", true, "run the SSL/TLS probe stream")
	fs.BoolVar(&opts.process, "process", true, "run the process probe stream")

	fs.Var(&opts.commFilter, "c", "command name to filter on (repeatable)")
	fs.IntVar(&opts.pidFilter, "p", 0, "pid to filter on, passed to both probes")

	fs.Var(&opts.sslFilters, "ssl-filter", "pre-chain SSL filter expression (repeatable, OR'd)")
	fs.BoolVar(&opts.httpParser, "http-parser", false, "insert the HTTP parser stage")
	fs.Var(&opts.httpFilters, "http-filter", "post-HTTP-parser filter expression (repeatable, OR'd)")

	fs.StringVar(&opts.logFile, "log-file", "", "enable the rotating file sink at PATH")

	fs.BoolVar(&opts.serverEnabled, "server", false, "enable the embedded HTTP server")
	fs.StringVar(&opts.serverAddr, "server-addr", "", "listen address for --server (stdlib flag can't express spec.md's optional --server [ADDR]; split into two flags, default :7777)")

	fs.BoolVar(&opts.quiet, "quiet", false, "disable the console sink")
	fs.BoolVar(&opts.verbose, "verbose", false, "human-readable text logs instead of JSON, at debug level")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	return opts, explicit, nil
}

// orExpression joins repeatable filter flags into the single expression
// internal/filter.Parse expects, matching spec.md's "repeatable, OR"
// contract for --ssl-filter and --http-filter.
func orExpression(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	joined := make([]string, len(parts))
	for i, p := range parts {
		joined[i] = fmt.Sprintf("(%s)", p)
	}
	return strings.Join(joined, " | ")
}
