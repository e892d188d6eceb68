package sinks

import (
	"fmt"
	"log/slog"
)

// BroadcastServerConfig collects every knob needed to stand up the C8
// broadcast/server sink. It deliberately mirrors config.ServerSink's
// fields rather than importing the config package, keeping sinks
// independent of how its caller loads configuration.
type BroadcastServerConfig struct {
	Addr              string
	BroadcastCapacity int
	RingBufferSize    int
	StaticAssetsDir   string
	RedisAddr         string
	SocketIOEnabled   bool
	PubSubProjectID   string
	PubSubTopicID     string
}

// NewBroadcastServerSink wires the Broadcast core, its backing ring
// (Redis-backed when RedisAddr is set, in-process otherwise), the
// optional Pub/Sub durable relay, and the embedded HTTP(+SSE/websocket/
// socket.io) server, returning the sink half (for the analyzer chain's
// fanout) and the server half (for the caller to ListenAndServe/Shutdown).
func NewBroadcastServerSink(cfg BroadcastServerConfig, logger *slog.Logger) (*Broadcast, *Server, error) {
	var ring Ring
	if cfg.RedisAddr != "" {
		redisRing, err := NewRedisRing(cfg.RedisAddr, "", cfg.RingBufferSize)
		if err != nil {
			return nil, nil, fmt.Errorf("sinks: redis ring: %w", err)
		}
		ring = redisRing
	} else {
		ring = newMemRing(cfg.RingBufferSize)
	}

	broadcast := NewBroadcast(ring, cfg.BroadcastCapacity, logger)

	if cfg.PubSubProjectID != "" && cfg.PubSubTopicID != "" {
		if err := broadcast.WithPubSub(cfg.PubSubProjectID, cfg.PubSubTopicID); err != nil {
			return nil, nil, fmt.Errorf("sinks: pubsub relay: %w", err)
		}
	}

	server := NewServer(ServerConfig{
		Addr:            cfg.Addr,
		StaticAssetsDir: cfg.StaticAssetsDir,
		SocketIOEnabled: cfg.SocketIOEnabled,
	}, broadcast, logger)

	return broadcast, server, nil
}
