package sinks

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	socketio "github.com/googollee/go-socket.io"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// ServerConfig carries the embedded HTTP server's wiring knobs.
type ServerConfig struct {
	Addr            string
	StaticAssetsDir string
	SocketIOEnabled bool
}

// Server is the C8 broadcast sink's HTTP face: a REST history endpoint, an
// SSE live stream, a websocket live stream, and an optional legacy
// Socket.IO bridge, all drawing from the same Broadcast core. Routing and
// CORS middleware are grounded on the teacher's internal/api.APIServer
// (gorilla/mux, permissive CORS for the dashboard frontend).
type Server struct {
	cfg       ServerConfig
	broadcast *Broadcast
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	socketio  *socketio.Server
	http      *http.Server
}

func NewServer(cfg ServerConfig, broadcast *Broadcast, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		broadcast: broadcast,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/events", s.handleHistory).Methods("GET")
	router.HandleFunc("/api/stream", s.handleSSE).Methods("GET")
	router.HandleFunc("/ws/stream", s.handleWebsocket).Methods("GET")

	if cfg.SocketIOEnabled {
		sio := socketio.NewServer(nil)
		sio.OnConnect("/", func(conn socketio.Conn) error {
			conn.Join("stream")
			return nil
		})
		sio.OnDisconnect("/", func(conn socketio.Conn, reason string) {})
		sio.OnError("/", func(conn socketio.Conn, err error) {
			s.logger.Debug("sinks: socket.io connection error", "error", err)
		})
		go func() {
			if err := sio.Serve(); err != nil {
				s.logger.Error("sinks: socket.io server stopped", "error", err)
			}
		}()
		s.socketio = sio
		router.PathPrefix("/socket.io/").Handler(sio)
	}

	if cfg.StaticAssetsDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticAssetsDir)))
	}

	s.http = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving the embedded HTTP(+SSE/websocket/socket.io)
// server until the process shuts down or an unrecoverable listen error
// occurs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("sinks: server listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("sinks: server: %w", err)
	}
	return nil
}

// Handler exposes the server's routed http.Handler for embedding in a
// larger mux or for in-process testing with httptest.NewServer, without
// requiring a real listener bound to cfg.Addr.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Shutdown() error {
	if s.socketio != nil {
		_ = s.socketio.Close()
	}
	return s.http.Close()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = parsed
		}
	}
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	events := s.broadcast.Since(since, limit)
	if events == nil {
		events = []eventmodel.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	body := struct {
		Events []eventmodel.Event `json:"events"`
	}{Events: events}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("sinks: failed to encode history response", "error", err)
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.broadcast.Subscribe()
	defer s.broadcast.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			frame, err := sseFormat(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sseFormat renders an Event as an SSE frame, adapting the teacher's
// CloudEvent.SSEFormat (event/data/id lines, blank-line terminated) to our
// envelope: Source stands in for CloudEvent.Type, and TimestampMs doubles
// as the frame id since Events carry no independent identifier.
func sseFormat(ev eventmodel.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %d\n\n", ev.Source, data, ev.TimestampMs)), nil
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("sinks: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.broadcast.Subscribe()
	defer s.broadcast.Unsubscribe(ch)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
