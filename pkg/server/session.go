package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/frel-dev/frel/pkg/middleware"
	"github.com/frel-dev/frel/pkg/protocol"
	"github.com/frel-dev/frel/pkg/runtime"
)

// Session is one client connection and the runtime serving it.
type Session struct {
	id     string
	srv    *Server
	rt     *runtime.Runtime
	logger *slog.Logger

	limiter      *rate.Limiter
	readLimit    int64
	writeTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    atomic.Bool

	events  atomic.Uint64
	frames  atomic.Uint64
	patches atomic.Uint64
}

func (s *Server) newSession() *Session {
	id := uuid.NewString()
	logger := s.logger.With("session_id", id)

	opts := append([]runtime.Option{runtime.WithLogger(logger)}, s.runtimeOpts...)
	if s.runtimeMetrics != nil {
		opts = append(opts, runtime.WithMetrics(s.runtimeMetrics))
	}
	opts = append(opts, runtime.WithMiddleware(s.sessionMiddleware(id, logger)...))

	limit := rate.Limit(s.cfg.EventsPerSecond)
	if s.cfg.EventsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Session{
		id:           id,
		srv:          s,
		rt:           runtime.New(opts...),
		logger:       logger,
		limiter:      rate.NewLimiter(limit, max(s.cfg.Burst, 1)),
		readLimit:    s.cfg.ReadLimit,
		writeTimeout: s.cfg.WriteTimeoutDuration(),
	}
}

// sessionMiddleware returns the handler chain for one session, outermost
// first.
func (s *Server) sessionMiddleware(id string, logger *slog.Logger) []runtime.Middleware {
	var mw []runtime.Middleware
	if s.cfg.Tracing {
		mw = append(mw, middleware.Tracing(
			middleware.WithAttributeExtractor(func(*runtime.Frame, runtime.Event) []attribute.KeyValue {
				return []attribute.KeyValue{attribute.String("frel.session.id", id)}
			})))
	}
	if s.eventMetrics != nil {
		mw = append(mw, s.eventMetrics.Middleware())
	}
	mw = append(mw, s.handlerMW...)
	return append(mw, middleware.Logging(logger))
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// attach binds the upgraded connection. It must run before the session is
// registered so Close always sees the connection.
func (s *Session) attach(ctx context.Context, conn *websocket.Conn) {
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.readLimit > 0 {
		conn.SetReadLimit(s.readLimit)
	}
}

// serve mounts the application, starts the worker and reads client frames
// until the connection or the session closes.
func (s *Session) serve() {
	defer s.rt.Close()
	defer s.Close()

	res, err := s.rt.Build(s.ctx, s.srv.app(s.rt))
	if err != nil {
		s.logger.Error("mount failed", "error", err)
		s.sendError(protocol.NewFatalError(protocol.ErrServerError, "mount failed"))
		return
	}
	s.sendPatches(res)

	worker := runtime.NewWorker(s.rt, s.sink,
		runtime.WithAbortPolicy(recoverable),
		runtime.WithWorkerLogger(s.logger))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("worker stopped", "error", err)
			s.Close()
		}
	}()

	s.readLoop()
	s.cancel()
	<-done
}

// recoverable acknowledges every abort except panics, which close the
// session.
func recoverable(err error) bool {
	var pe *runtime.PanicError
	return !errors.As(err, &pe)
}

// sink reports frame outcomes to the client.
func (s *Session) sink(res *runtime.Result, err error) {
	if err == nil {
		s.sendPatches(res)
		return
	}
	if recoverable(err) {
		s.logger.Warn("frame aborted", "error", err, "code", runtime.CodeOf(err))
		s.sendError(protocol.NewError(protocol.ErrFrameAborted, err.Error()))
		return
	}
	s.logger.Error("frame panicked", "error", err)
	s.sendError(protocol.NewFatalError(protocol.ErrServerError, "internal error"))
}

func (s *Session) readLoop() {
	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && !s.closed.Load() {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			s.reject(protocol.ErrInvalidFrame, "binary frames only")
			continue
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.logger.Debug("frame decode error", "error", err)
			s.reject(protocol.ErrInvalidFrame, err.Error())
			continue
		}
		if frame.Type != protocol.FrameEvent {
			s.reject(protocol.ErrInvalidFrame, "unexpected "+frame.Type.String()+" frame")
			continue
		}
		s.handleEvent(frame.Payload)
	}
}

// handleEvent decodes one event and submits it to the runtime.
func (s *Session) handleEvent(payload []byte) {
	ev, err := protocol.DecodeEvent(payload)
	if err != nil {
		s.logger.Debug("event decode error", "error", err)
		s.reject(protocol.ErrInvalidEvent, err.Error())
		return
	}

	if !s.limiter.Allow() {
		s.srv.metrics.inbound.WithLabelValues(inboundRateLimited).Inc()
		s.sendError(protocol.NewError(protocol.ErrRateLimited, "event rate exceeded"))
		return
	}

	err = s.rt.Submit(runtime.Event{
		Type:    ev.Type,
		Target:  ev.Target,
		Payload: ev.Payload,
	})
	switch {
	case err == nil:
		s.events.Add(1)
		s.srv.metrics.inbound.WithLabelValues(inboundAccepted).Inc()
	case errors.Is(err, runtime.ErrQueueFull):
		s.srv.metrics.inbound.WithLabelValues(inboundQueueFull).Inc()
		s.sendError(protocol.NewError(protocol.ErrQueueFull, "event queue full"))
	default:
		s.logger.Error("submit failed", "error", err)
		s.sendError(protocol.NewError(protocol.ErrServerError, "event refused"))
	}
}

func (s *Session) reject(code protocol.ErrorCode, msg string) {
	s.srv.metrics.inbound.WithLabelValues(inboundInvalid).Inc()
	s.sendError(protocol.NewError(code, msg))
}

func (s *Session) sendPatches(res *runtime.Result) {
	if res == nil {
		return
	}
	msgs, err := protocol.PatchesMessages(&protocol.PatchesFrame{Seq: res.Seq, Patches: res.Patches})
	if err != nil {
		s.logger.Error("patch encode error", "error", err, "frame", res.Seq)
		s.sendError(protocol.NewFatalError(protocol.ErrServerError, "patch encoding failed"))
		return
	}
	for _, msg := range msgs {
		if err := s.write(msg); err != nil {
			return
		}
	}
	s.frames.Add(1)
	s.patches.Add(uint64(len(res.Patches)))
}

// sendError writes ef and closes the session if it is fatal.
func (s *Session) sendError(ef *protocol.ErrorFrame) {
	msg, err := protocol.ErrorMessage(ef)
	if err == nil {
		_ = s.write(msg)
	}
	if ef.Fatal {
		s.Close()
	}
}

func (s *Session) write(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		s.srv.metrics.writeErrors.Inc()
		s.logger.Warn("write error", "error", err)
		return err
	}
	s.srv.metrics.bytesSent.Add(float64(len(msg)))
	return nil
}

// Close ends the session. It is safe to call more than once and from any
// goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed.Store(true)
		if s.conn != nil {
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = s.conn.Close()
		}
		s.writeMu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}

		s.logger.Info("session closed",
			"events", s.events.Load(),
			"frames", s.frames.Load(),
			"patches", s.patches.Load())
	})
}
