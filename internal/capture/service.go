package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/mohammad-safakhou/postshot/internal/browser"
)

// DefaultTimeout bounds a whole capture, browser start and teardown included.
const DefaultTimeout = 45 * time.Second

// Capturer is what front-ends (bot, HTTP API, CLI) depend on.
type Capturer interface {
	Capture(ctx context.Context, req Request) Outcome
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Timeout is the overall deadline per capture. Zero means DefaultTimeout,
	// negative disables the deadline.
	Timeout time.Duration
	Metrics *Metrics
	Logger  *log.Logger
}

// Service is the pipeline boundary: it provisions a private session per
// request, runs the engine and always releases the session.
type Service struct {
	sessions browser.Manager
	engine   *Engine
	timeout  time.Duration
	metrics  *Metrics
	logger   *log.Logger
}

func NewService(sessions browser.Manager, engine *Engine, opts ServiceOptions) *Service {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[CAPTURE] ", log.LstdFlags)
	}
	return &Service{
		sessions: sessions,
		engine:   engine,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Capture runs one best-effort capture. It never panics and never returns a
// raw error.
func (s *Service) Capture(ctx context.Context, req Request) (out Outcome) {
	started := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var sessionID string
	// The engine contains panics from capture steps; this catches the ones
	// raised by the session manager itself.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("capture %s panicked: %v\n%s", req, r, debug.Stack())
			out = Outcome{Request: req, SessionID: sessionID, Failure: newFailure(FailureInternal, StateIdle, fmt.Errorf("panic: %v", r))}
		}
		out.Elapsed = time.Since(started)
		s.metrics.record(ctx, out)
	}()

	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		kind := FailureSessionInit
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			kind = FailureTimeout
		}
		return Outcome{Request: req, Failure: newFailure(kind, StateIdle, err)}
	}
	sessionID = sess.ID()
	s.metrics.sessionStarted(ctx)
	defer func() {
		s.sessions.Release(sess)
		s.metrics.sessionEnded(context.WithoutCancel(ctx))
	}()

	return s.engine.Capture(ctx, sess, req)
}
