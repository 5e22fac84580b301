package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ServerConfig holds the transport settings of a relay Server.
type ServerConfig struct {
	Addr              string
	Version           string
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	MaxPayloadBytes   int
	SendBuffer        int
	RateLimitRPS      float64
	RateLimitBurst    int
}

func (c *ServerConfig) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
}

// frameOverhead is the slack allowed above MaxPayloadBytes for the JSON
// envelope of a message frame.
const frameOverhead = 4 << 10

const writeWait = 10 * time.Second

// Server is the websocket front end of the relay.
type Server struct {
	cfg      ServerConfig
	router   *Router
	events   EventPublisher
	ready    func() error
	upgrader websocket.Upgrader
	started  time.Time

	mu    sync.Mutex
	conns map[*wsConn]struct{}

	connsTotal      atomic.Int64
	framesIn        atomic.Int64
	framesDelivered atomic.Int64
	framesDropped   atomic.Int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPublisher sets the lifecycle event sink for both routing and sweeps.
func WithPublisher(p EventPublisher) ServerOption {
	return func(s *Server) { s.events = p }
}

// WithReadiness sets the check behind /ready.
func WithReadiness(check func() error) ServerOption {
	return func(s *Server) { s.ready = check }
}

// NewServer builds a Server routing through reg.
func NewServer(cfg ServerConfig, reg *Registry, opts ...ServerOption) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:     cfg,
		events:  NopPublisher{},
		ready:   func() error { return nil },
		started: time.Now(),
		conns:   make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Endpoints are native apps, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.router = NewRouter(reg, WithEvents(s.events), WithMaxPayload(cfg.MaxPayloadBytes))
	return s
}

// Router returns the server's router.
func (s *Server) Router() *Router { return s.router }

// Handler returns the HTTP handler serving /ws, /health, /ready and /metrics.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	r.GET("/ws", newIPRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, time.Minute), s.handleWS)
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", s.handleMetrics)
	return r
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and runs the sweeper until ctx is cancelled, then shuts
// down: open websockets are closed with 1001 and HTTP drains for up to 5s.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go RunSweeper(ctx, s.router.Registry(), s.cfg.CleanupInterval, s.events)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("version", s.cfg.Version).Msg("Relay listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Relay shutting down")
	s.closeAll(websocket.CloseGoingAway, "relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("Websocket upgrade failed")
		return
	}
	conn := newWSConn(ws, s.cfg.SendBuffer, writeWait)
	s.track(conn)
	s.connsTotal.Add(1)

	log.Debug().Str("conn", conn.ID()).Str("remote", c.ClientIP()).Msg("Connection opened")
	done := make(chan struct{})
	go func() {
		conn.writePump(s.cfg.HeartbeatInterval)
		close(done)
	}()
	s.readLoop(conn)
	<-done
	s.untrack(conn)
	log.Debug().Str("conn", conn.ID()).Msg("Connection closed")
}

// readLoop feeds frames to the router until the socket fails, then runs the
// disconnect path.
func (s *Server) readLoop(conn *wsConn) {
	ws := conn.ws
	deadline := 2 * s.cfg.HeartbeatInterval
	if s.cfg.MaxPayloadBytes > 0 {
		ws.SetReadLimit(int64(s.cfg.MaxPayloadBytes) + frameOverhead)
	}
	_ = ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})

	var st ConnState
	for {
		kind, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("conn", conn.ID()).Msg("Read failed")
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(deadline))
		if kind != websocket.TextMessage {
			continue
		}
		s.framesIn.Add(1)

		var actions []Action
		st, actions = s.router.Handle(conn, st, raw)
		s.apply(actions)
	}

	s.apply(s.router.Disconnect(conn, st))
	_ = conn.Close(CloseNormal, "")
}

func (s *Server) apply(actions []Action) {
	for _, a := range actions {
		if a.Close != nil {
			_ = a.Conn.Close(a.Close.Code, a.Close.Reason)
			continue
		}
		if err := a.Conn.Send(a.Frame); err != nil {
			s.framesDropped.Add(1)
			log.Debug().Err(err).Str("conn", a.Conn.ID()).Str("frame", string(a.Frame.Type)).Msg("Frame dropped")
			continue
		}
		s.framesDelivered.Add(1)
	}
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) openConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) closeAll(code int, reason string) {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(code, reason)
	}
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	TotalSessions  int    `json:"totalSessions"`
	ActiveSessions int    `json:"activeSessions"`
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.router.Registry().Stats()
	c.JSON(http.StatusOK, HealthStatus{
		Status:         "ok",
		Version:        s.cfg.Version,
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
		TotalSessions:  st.TotalSessions,
		ActiveSessions: st.ActiveSessions,
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	st := s.router.Registry().Stats()
	w := c.Writer
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, v any) {
		fmt.Fprintf(w, "# HELP tether_relay_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE tether_relay_%s %s\n", name, kind)
		fmt.Fprintf(w, "tether_relay_%s %v\n", name, v)
	}
	metric("sessions_total", "gauge", "Sessions held by the registry", st.TotalSessions)
	metric("sessions_active", "gauge", "Sessions with at least one connected endpoint", st.ActiveSessions)
	metric("connections_open", "gauge", "Open websocket connections", s.openConns())
	metric("connections_accepted_total", "counter", "Websocket connections accepted", s.connsTotal.Load())
	metric("frames_received_total", "counter", "Frames received from endpoints", s.framesIn.Load())
	metric("frames_delivered_total", "counter", "Frames queued for delivery", s.framesDelivered.Load())
	metric("frames_dropped_total", "counter", "Frames dropped on closed or slow connections", s.framesDropped.Load())
	metric("uptime_seconds", "counter", "Uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}
