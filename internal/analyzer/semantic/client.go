package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/agentsight/agentsight/internal/circuitbreaker"
)

// analyzeMethod is the fully-qualified gRPC method path the sidecar is
// expected to serve. No .proto file backs this — the jsonCodec means any
// struct that marshals to the shape the sidecar expects will do.
const analyzeMethod = "/agentsight.semantic.SemanticAnalyzer/Analyze"

// Request is what we send the sidecar: enough of the analyzer-chain event
// for it to produce tags, without requiring it to understand our full
// Event/HTTPMessage schema.
type Request struct {
	// RequestID lets the sidecar correlate its own logs with ours; it has
	// no meaning to this client beyond a per-call correlation token.
	RequestID string `json:"request_id"`
	Source    string `json:"source"`
	Pid       uint32 `json:"pid"`
	Comm      string `json:"comm"`
	Payload   string `json:"payload"`
}

// Response is the sidecar's annotation for one event.
type Response struct {
	Tags       []string          `json:"tags"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Analyzer is the narrow interface the chain depends on, so tests can
// substitute a fake without dialing anything.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
	Close() error
}

// Client dials a semantic analyzer sidecar over plain-text gRPC (the
// sidecar is assumed to run on a trusted local network, same as the other
// probe collaborators).
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// Dial connects to the sidecar at addr. Pass timeout <= 0 for a 5s default
// per-call deadline. A circuit breaker guards Analyze so a sidecar that is
// down or hung doesn't cost every event its full RPC timeout — after three
// consecutive failures the breaker opens for 20s and Analyze fails fast.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("semantic-sidecar")),
	}, nil
}

func (c *Client) Analyze(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	var resp Response
	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, analyzeMethod, &req, &resp, grpc.CallContentSubtype(codecName))
	})
	if err != nil {
		return Response{}, fmt.Errorf("semantic: analyze rpc: %w", err)
	}
	return resp, nil
}

func (c *Client) Close() error { return c.conn.Close() }
