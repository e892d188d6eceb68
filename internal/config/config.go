// Package config loads the trace pipeline's configuration from an optional
// YAML file, layered with environment-variable overrides and .env loading,
// the same two-stage approach the rest of the corpus uses for service
// configuration.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the full trace pipeline configuration: probe behavior, the
// filter/parser chain, and sink destinations.
type Config struct {
	Probe   ProbeConfig   `yaml:"probe"`
	Dedup   DedupConfig   `yaml:"dedup"`
	Chain   ChainConfig   `yaml:"chain"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Logging LoggingConfig `yaml:"logging"`
}

// ProbeConfig carries the knobs recognized by the two probe runners.
type ProbeConfig struct {
	PidFilter          int      `yaml:"pid_filter"`
	CommFilter         []string `yaml:"comm_filter"`
	UidFilter          int      `yaml:"uid_filter"`
	Handshake          bool     `yaml:"handshake"`
	Hexdump            bool     `yaml:"hexdump"`
	Latency            bool     `yaml:"latency"`
	SSLBinaryOverride  string   `yaml:"ssl_binary_path_override"`
	ProcBinaryOverride string   `yaml:"process_binary_path_override"`
	GraceTimeoutMs     int      `yaml:"grace_timeout_ms"`
	ScannerBufferBytes int      `yaml:"scanner_buffer_bytes"`
}

// DedupConfig tunes the process-probe file-open aggregation window.
type DedupConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	TableSize     int `yaml:"table_size"`
}

// ChainConfig carries the analyzer-chain wiring flags.
type ChainConfig struct {
	SSLFilterExpressions  []string `yaml:"ssl_filter_expressions"`
	HTTPParserEnabled     bool     `yaml:"http_parser_enabled"`
	HTTPFilterExpressions []string `yaml:"http_filter_expressions"`
	SemanticSidecarAddr   string   `yaml:"semantic_sidecar_addr"`
	ChunkMergerIdleMs     int      `yaml:"chunk_merger_idle_ms"`
	SSEIdleMs             int      `yaml:"sse_idle_ms"`
}

// SinksConfig carries console/file/server sink settings.
type SinksConfig struct {
	Quiet  bool       `yaml:"quiet"`
	File   FileSink   `yaml:"file"`
	Server ServerSink `yaml:"server"`
}

type FileSink struct {
	Enabled                 bool   `yaml:"enabled"`
	Path                    string `yaml:"path"`
	MaxFileSizeBytes        int64  `yaml:"max_file_size_bytes"`
	MaxFiles                int    `yaml:"max_files"`
	SizeCheckIntervalEvents int    `yaml:"size_check_interval_events"`
	CompressRotated         bool   `yaml:"compress_rotated"`
}

type ServerSink struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr"`
	BroadcastCapacity int    `yaml:"broadcast_capacity"`
	RingBufferSize    int    `yaml:"ring_buffer_size"`
	StaticAssetsDir   string `yaml:"static_assets_dir"`
	RedisAddr         string `yaml:"redis_addr"`
	PubSubProjectID   string `yaml:"pubsub_project_id"`
	PubSubTopicID     string `yaml:"pubsub_topic_id"`
	// SocketIOEnabled gates the legacy /socket.io/ bridge, for dashboards
	// already wired to Socket.IO rather than SSE or the websocket stream.
	SocketIOEnabled bool `yaml:"socket_io_enabled"`
}

type LoggingConfig struct {
	Verbose bool   `yaml:"verbose"`
	LogFile string `yaml:"log_file"`
}

// Load reads path (if it exists; a missing file is not an error — defaults
// and env overrides still apply) and layers environment-variable overrides
// and defaults on top.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env; absence is not an error

	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvInt("AGENTSIGHT_PID_FILTER", 0); v > 0 {
		c.Probe.PidFilter = v
	}
	if v := getEnv("AGENTSIGHT_COMM_FILTER", ""); v != "" {
		c.Probe.CommFilter = splitCSV(v)
	}
	if v := getEnvInt("AGENTSIGHT_UID_FILTER", 0); v > 0 {
		c.Probe.UidFilter = v
	}
	c.Probe.Handshake = getEnvBool("AGENTSIGHT_HANDSHAKE", c.Probe.Handshake)
	c.Probe.Hexdump = getEnvBool("AGENTSIGHT_HEXDUMP", c.Probe.Hexdump)
	c.Probe.Latency = getEnvBool("AGENTSIGHT_LATENCY", c.Probe.Latency)
	c.Probe.SSLBinaryOverride = getEnv("AGENTSIGHT_SSL_BINARY", c.Probe.SSLBinaryOverride)
	c.Probe.ProcBinaryOverride = getEnv("AGENTSIGHT_PROCESS_BINARY", c.Probe.ProcBinaryOverride)

	if v := getEnvInt("AGENTSIGHT_DEDUP_WINDOW_SECONDS", 0); v > 0 {
		c.Dedup.WindowSeconds = v
	}
	if v := getEnvInt("AGENTSIGHT_DEDUP_TABLE_SIZE", 0); v > 0 {
		c.Dedup.TableSize = v
	}

	c.Sinks.Quiet = getEnvBool("AGENTSIGHT_QUIET", c.Sinks.Quiet)
	if v := getEnv("AGENTSIGHT_LOG_FILE", ""); v != "" {
		c.Sinks.File.Enabled = true
		c.Sinks.File.Path = v
	}
	if v := getEnv("AGENTSIGHT_SERVER_ADDR", ""); v != "" {
		c.Sinks.Server.Enabled = true
		c.Sinks.Server.Addr = v
	}
	c.Sinks.Server.RedisAddr = getEnv("AGENTSIGHT_REDIS_ADDR", c.Sinks.Server.RedisAddr)
	c.Sinks.Server.PubSubProjectID = getEnv("AGENTSIGHT_PUBSUB_PROJECT", c.Sinks.Server.PubSubProjectID)
	c.Sinks.Server.PubSubTopicID = getEnv("AGENTSIGHT_PUBSUB_TOPIC", c.Sinks.Server.PubSubTopicID)
	c.Sinks.Server.SocketIOEnabled = getEnvBool("AGENTSIGHT_SOCKETIO", c.Sinks.Server.SocketIOEnabled)

	c.Logging.Verbose = getEnvBool("AGENTSIGHT_VERBOSE", c.Logging.Verbose)
	c.Logging.LogFile = getEnv("AGENTSIGHT_LOG_FILE_PATH", c.Logging.LogFile)
}

func (c *Config) applyDefaults() {
	if c.Probe.GraceTimeoutMs == 0 {
		c.Probe.GraceTimeoutMs = 2000
	}
	if c.Probe.ScannerBufferBytes == 0 {
		c.Probe.ScannerBufferBytes = 64 * 1024
	}
	if c.Dedup.WindowSeconds == 0 {
		c.Dedup.WindowSeconds = 60
	}
	if c.Dedup.TableSize == 0 {
		c.Dedup.TableSize = 1024
	}
	if c.Chain.ChunkMergerIdleMs == 0 {
		c.Chain.ChunkMergerIdleMs = 60_000
	}
	if c.Chain.SSEIdleMs == 0 {
		c.Chain.SSEIdleMs = 120_000
	}
	if c.Sinks.Server.BroadcastCapacity == 0 {
		c.Sinks.Server.BroadcastCapacity = 1000
	}
	if c.Sinks.Server.RingBufferSize == 0 {
		c.Sinks.Server.RingBufferSize = 1000
	}
	if c.Sinks.Server.Addr == "" && c.Sinks.Server.Enabled {
		c.Sinks.Server.Addr = ":7777"
	}
	if c.Sinks.File.MaxFileSizeBytes == 0 {
		c.Sinks.File.MaxFileSizeBytes = 100 * 1024 * 1024
	}
	if c.Sinks.File.MaxFiles == 0 {
		c.Sinks.File.MaxFiles = 5
	}
	if c.Sinks.File.SizeCheckIntervalEvents == 0 {
		c.Sinks.File.SizeCheckIntervalEvents = 100
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// LogLevel derives the slog level internal/logging should configure from
// the Verbose flag.
func (c *Config) LogLevel() slog.Level {
	if c.Logging.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
