package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frel-dev/frel/internal/config"
	eventmw "github.com/frel-dev/frel/pkg/middleware"
	"github.com/frel-dev/frel/pkg/runtime"
)

// SessionHeader carries the session ID in the upgrade response.
const SessionHeader = "X-Frel-Session"

const shutdownTimeout = 10 * time.Second

// AppFactory installs an application into a fresh runtime. It registers
// event handlers with rt.Handle and returns the tree builder that runs as
// the session's first frame.
type AppFactory func(rt *runtime.Runtime) func(f *runtime.Frame) error

// Server is the HTTP/WebSocket front of frel.
type Server struct {
	app         AppFactory
	cfg         config.ServerConfig
	metricsCfg  config.MetricsConfig
	runtimeOpts []runtime.Option
	handlerMW   []runtime.Middleware

	registry       *prometheus.Registry
	metrics        *serverMetrics
	runtimeMetrics *runtime.Metrics
	eventMetrics   *eventmw.Metrics

	upgrader websocket.Upgrader
	router   chi.Router

	mu         sync.Mutex
	sessions   map[string]*Session
	httpServer *http.Server
	closing    bool

	logger *slog.Logger
}

// New creates a Server mounting app into every session.
func New(app AppFactory, opts ...Option) *Server {
	defaults := config.New()
	s := &Server{
		app:        app,
		cfg:        defaults.Server,
		metricsCfg: defaults.Metrics,
		sessions:   make(map[string]*Session),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	namespace := s.metricsCfg.Namespace
	if namespace == "" {
		namespace = config.DefaultNamespace
	}
	s.metrics = newServerMetrics(s.registry, namespace)
	if !s.metricsCfg.Disabled {
		s.runtimeMetrics = runtime.NewMetrics(
			runtime.WithRegistry(s.registry),
			runtime.WithNamespace(namespace))
		s.eventMetrics = eventmw.NewMetrics(
			eventmw.WithRegistry(s.registry),
			eventmw.WithNamespace(namespace))
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin(),
	}
	s.router = s.routes()
	return s
}

// checkOrigin returns nil (gorilla's same-origin check) unless origins are
// configured.
func (s *Server) checkOrigin() func(*http.Request) bool {
	allowed := s.cfg.AllowedOrigins
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(s.socketPath(), s.HandleWebSocket)
	if !s.metricsCfg.Disabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	return r
}

func (s *Server) socketPath() string {
	if s.cfg.Path == "" {
		return config.DefaultSocketPath
	}
	return s.cfg.Path
}

// Handler returns the server's HTTP handler for mounting in another router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request and runs a session until the
// connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession()
	header := http.Header{}
	header.Set(SessionHeader, sess.id)

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()))
		return
	}
	sess.attach(context.WithoutCancel(r.Context()), conn)
	if !s.register(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		sess.Close()
		sess.rt.Close()
		return
	}
	defer s.unregister(sess)

	sess.logger.Info("session opened",
		"remote", r.RemoteAddr,
		"request_id", middleware.GetReqID(r.Context()))
	sess.serve()
}

func (s *Server) register(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.id] = sess
	s.metrics.sessions.Inc()
	s.metrics.sessionsOpen.Inc()
	return true
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.id]; ok {
		delete(s.sessions, sess.id)
		s.metrics.sessions.Dec()
	}
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = config.DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", addr, "path", s.socketPath())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	srv := s.httpServer
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("server shutdown complete")
	return nil
}
