package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/pkg/session"
)

const (
	defaultPath            = "/chat"
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 64 * 1024
	defaultMaxPending      = 8
	defaultPerMinute       = 60
)

// Server accepts chat connections and runs one session per connection
type Server struct {
	addr            string
	path            string
	writeTimeout    time.Duration
	maxMessageBytes int64
	maxPending      int
	perMinute       int

	sessions *session.Manager
	relay    *Relay
	conns    *ConnRegistry
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	server   *http.Server
	listener net.Listener

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	connWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Addr            string
	Path            string
	Sessions        *session.Manager
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// MaxPendingPrompts bounds prompts admitted but not yet answered,
	// including the one being answered.
	MaxPendingPrompts int
	// PromptsPerMinute bounds admitted prompts per connection. Negative
	// disables the limit.
	PromptsPerMinute int
	Logger           zerolog.Logger
}

// NewServer creates a new chat server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxPendingPrompts <= 0 {
		cfg.MaxPendingPrompts = defaultMaxPending
	}
	switch {
	case cfg.PromptsPerMinute == 0:
		cfg.PromptsPerMinute = defaultPerMinute
	case cfg.PromptsPerMinute < 0:
		cfg.PromptsPerMinute = 0
	}

	return &Server{
		addr:            cfg.Addr,
		path:            cfg.Path,
		writeTimeout:    cfg.WriteTimeout,
		maxMessageBytes: cfg.MaxMessageBytes,
		maxPending:      cfg.MaxPendingPrompts,
		perMinute:       cfg.PromptsPerMinute,
		sessions:        cfg.Sessions,
		relay:           &Relay{Logger: cfg.Logger},
		conns:           NewConnRegistry(),
		logger:          cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP routes: the chat endpoint, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessions.Count())
	})
	return mux
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", s.path).
		Msg("Starting chat server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Chat server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop refuses new connections, closes live ones and waits for their
// sessions to end or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Int("connections", s.conns.Count()).Msg("Shutting down chat server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}

	for _, c := range s.conns.GetAll() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Chat server stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, sessions still draining")
		return ctx.Err()
	}

	if shutdownErr != nil {
		return fmt.Errorf("failed to shutdown server: %w", shutdownErr)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}
	s.connWG.Add(1)
	s.shutdownMu.RUnlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.connWG.Done()
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	ws.SetReadLimit(s.maxMessageBytes)

	connID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate connection ID")
		_ = ws.Close()
		s.connWG.Done()
		return
	}
	conn := newConn(connID, ws, s.writeTimeout)
	if !s.registerConn(conn) {
		_ = conn.Close()
		s.connWG.Done()
		return
	}
	observability.ConnectionOpened()

	go func() {
		defer s.connWG.Done()
		defer func() {
			_ = conn.Close()
			s.conns.Remove(conn.ID)
			observability.ConnectionClosed()
		}()
		s.serveConn(context.Background(), conn)
	}()
}

// registerConn adds conn unless Stop has begun. Stop closes only the
// connections registered before it, so a late one must not be added.
func (s *Server) registerConn(conn *Conn) bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.isShuttingDown {
		return false
	}
	s.conns.Add(conn)
	return true
}

// serveConn runs one session for the connection's lifetime. Prompts are
// answered one at a time; the reader keeps reading meanwhile so a
// disconnect is noticed while an answer streams.
func (s *Server) serveConn(parent context.Context, conn *Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("conn_id", conn.ID).Msg("Failed to open session")
		_ = conn.Send(ErrorEvent("session unavailable"))
		return
	}
	defer s.sessions.Close(sess.ID)

	logger := s.logger.With().
		Str("session_id", sess.ID).
		Str("conn_id", conn.ID).
		Logger()
	logger.Info().Str("ip", conn.RemoteAddr).Msg("Client connected")

	admission := NewAdmission(s.perMinute, s.maxPending)
	prompts := make(chan string, s.maxPending)
	go s.readLoop(ctx, cancel, conn, admission, prompts, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Client disconnected")
			return
		case prompt := <-prompts:
			logger.Debug().Int("prompt_len", len(prompt)).Msg("Prompt received")
			err := s.relay.Stream(ctx, sess.Answer(ctx, prompt), conn)
			admission.Done()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("Relay stopped")
				}
				logger.Info().Msg("Client disconnected")
				return
			}
		}
	}
}

// readLoop decodes inbound frames and queues admitted prompts. Frames that
// are not queued get an invalid or rejected event, which never ends the
// answer being streamed. It cancels the session when the socket fails.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *Conn, admission *Admission, prompts chan<- string, logger zerolog.Logger) {
	defer cancel()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		msg, err := DecodePrompt(data)
		if err != nil {
			logger.Warn().Err(err).Msg("Rejected inbound frame")
			if err := conn.Send(InvalidEvent(err.Error())); err != nil {
				return
			}
			continue
		}

		if ok, reason := admission.Admit(); !ok {
			recent, pending := admission.Stats()
			logger.Warn().
				Str("reason", reason).
				Int("recent", recent).
				Int("pending", pending).
				Msg("Prompt rejected")
			if err := conn.Send(RejectedEvent(reason)); err != nil {
				return
			}
			continue
		}

		// admitted prompts never exceed the queue's capacity
		select {
		case prompts <- msg.Content:
		case <-ctx.Done():
			return
		}
	}
}
