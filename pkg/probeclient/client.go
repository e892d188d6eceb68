// Package probeclient is a client SDK for the HTTP server a running trace
// process embeds via internal/sinks.Server: event history, a Server-Sent
// Events live stream, and a websocket live stream. It is grounded on
// pkg/sdk's gateway client (an http.Client wrapped in context-aware request
// builders plus typed response decoding), pointed at the broadcast sink's
// wire format instead of a governance gateway.
//
// Quick start:
//
//	client := probeclient.NewClient(probeclient.Config{
//	    BaseURL: "http://localhost:7777",
//	})
//
//	history, err := client.FetchEvents(ctx, 0, 100)
//
//	events, errs := client.StreamEvents(ctx)
//	for ev := range events {
//	    ...
//	}
package probeclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// Config holds the probeclient's wiring.
type Config struct {
	// BaseURL is the trace process's embedded server, e.g.
	// "http://localhost:7777". Required.
	BaseURL string

	// Timeout bounds FetchEvents calls (default 10s). It does not apply to
	// the long-lived StreamEvents/StreamWebsocket connections.
	Timeout time.Duration
}

// Client talks to one trace process's embedded HTTP server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a probeclient for the server at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// historyResponse mirrors internal/sinks.Server's handleHistory envelope.
type historyResponse struct {
	Events []eventmodel.Event `json:"events"`
}

// FetchEvents retrieves the ring-buffered event history from /api/events.
// since is a timestamp cursor (milliseconds, exclusive) and limit caps the
// number of events returned; zero values mean "from the start" and "no
// cap", matching the server's own defaults.
func (c *Client) FetchEvents(ctx context.Context, since int64, limit int) ([]eventmodel.Event, error) {
	q := url.Values{}
	if since != 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}
	if limit != 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("probeclient: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probeclient: fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probeclient: fetch events: unexpected status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("probeclient: decode events: %w", err)
	}
	return body.Events, nil
}

// StreamEvents opens /api/stream and decodes the server's SSE frames
// ("event: <source>\ndata: <json>\nid: <ts>\n\n") into Events. Both
// returned channels close when ctx is canceled, the connection drops, or a
// frame fails to parse; callers should drain both with a select.
func (c *Client) StreamEvents(ctx context.Context) (<-chan eventmodel.Event, <-chan error) {
	events := make(chan eventmodel.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
		if err != nil {
			errs <- fmt.Errorf("probeclient: build request: %w", err)
			return
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("probeclient: stream events: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- fmt.Errorf("probeclient: stream events: unexpected status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		var dataLine string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data: "):
				dataLine = strings.TrimPrefix(line, "data: ")
			case line == "" && dataLine != "":
				var ev eventmodel.Event
				if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
					errs <- fmt.Errorf("probeclient: decode sse frame: %w", err)
					return
				}
				dataLine = ""
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("probeclient: stream events: %w", err)
		}
	}()

	return events, errs
}

// StreamWebsocket opens /ws/stream and decodes each message as a raw
// JSON-encoded Event, the format internal/sinks.Server's handleWebsocket
// writes with conn.WriteJSON. Both returned channels close when ctx is
// canceled or the connection drops.
func (c *Client) StreamWebsocket(ctx context.Context) (<-chan eventmodel.Event, <-chan error) {
	events := make(chan eventmodel.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		wsURL, err := toWebsocketURL(c.baseURL + "/ws/stream")
		if err != nil {
			errs <- fmt.Errorf("probeclient: %w", err)
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			errs <- fmt.Errorf("probeclient: dial websocket: %w", err)
			return
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			var ev eventmodel.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("probeclient: read websocket: %w", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs
}

// toWebsocketURL rewrites an http(s) base URL into its ws(s) equivalent.
func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
