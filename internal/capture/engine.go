package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/mohammad-safakhou/postshot/internal/browser"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultSelector     = ".tgme_widget_message_bubble"
	DefaultRenderWait   = 5 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// ErrElementNotFound is wrapped by ElementNotFound failures.
var ErrElementNotFound = errors.New("post bubble not found")

// WaitStrategy decides how the engine waits for the widget to finish
// rendering after navigation.
type WaitStrategy string

const (
	// WaitPoll polls until the bubble exists and its geometry is stable for
	// two consecutive polls, bounded by RenderWait.
	WaitPoll WaitStrategy = "poll"
	// WaitFixed always sleeps RenderWait.
	WaitFixed WaitStrategy = "fixed"
)

// EngineOptions configures an Engine. Zero values take defaults, except
// RenderWait where zero skips the wait entirely.
type EngineOptions struct {
	Selector     string
	Wait         WaitStrategy
	RenderWait   time.Duration
	PollInterval time.Duration
	Format       Format
	JPEGQuality  int
	Logger       *log.Logger
	Tracer       trace.Tracer
}

// Engine runs navigate, wait, locate, screenshot, crop and encode against a
// session it does not own.
type Engine struct {
	opts   EngineOptions
	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Selector == "" {
		opts.Selector = DefaultSelector
	}
	if opts.Wait == "" {
		opts.Wait = WaitPoll
	}
	if opts.RenderWait < 0 {
		opts.RenderWait = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[CAPTURE] ", log.LstdFlags)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("postshot/capture")
	}
	return &Engine{opts: opts, logger: logger, tracer: tracer, now: time.Now}
}

// run tracks the current state of one capture.
type run struct {
	e     *Engine
	state State
	span  trace.Span
}

func (r *run) enter(ctx context.Context, s State) (context.Context, trace.Span) {
	r.state = s
	ctx, r.span = r.e.tracer.Start(ctx, "capture."+s.String())
	return ctx, r.span
}

// fail classifies err. Anything that happened after ctx expired is a
// timeout, whichever step it interrupted.
func (r *run) fail(ctx context.Context, span trace.Span, kind FailureKind, err error) *Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind = FailureTimeout
		if err == nil {
			err = ctxErr
		} else if !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
	}
	f := newFailure(kind, r.state, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, f.Kind.String())
	span.End()
	return f
}

// Capture never returns a raw error; every problem becomes Outcome.Failure.
func (e *Engine) Capture(ctx context.Context, sess browser.Session, req Request) Outcome {
	started := e.now()
	out := Outcome{Request: req}
	if sess != nil {
		out.SessionID = sess.ID()
	}
	img, f := e.capture(ctx, sess, req)
	out.Elapsed = e.now().Sub(started)
	if f != nil {
		out.Failure = f
		e.logger.Printf("capture %s failed (%s at %s) after %s: %s", req, f.Kind, f.At, out.Elapsed.Round(time.Millisecond), f.Reason)
		return out
	}
	out.Image = img
	e.logger.Printf("capture %s ok: %dx%d %s, %d bytes in %s", req, img.Width, img.Height, img.Format, len(img.Data), out.Elapsed.Round(time.Millisecond))
	return out
}

func (e *Engine) capture(ctx context.Context, sess browser.Session, req Request) (img *Image, f *Failure) {
	r := &run{e: e, state: StateIdle}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Printf("capture %s panicked in %s: %v\n%s", req, r.state, p, debug.Stack())
			img = nil
			err := fmt.Errorf("panic: %v", p)
			if r.span == nil {
				f = newFailure(FailureInternal, r.state, err)
				return
			}
			f = r.fail(ctx, r.span, FailureInternal, err)
		}
	}()
	if sess == nil {
		return nil, newFailure(FailureSessionInit, StateIdle, errors.New("no browser session"))
	}
	if req.IsZero() {
		return nil, newFailure(FailureInternal, StateIdle, errors.New("empty capture request"))
	}

	stepCtx, span := r.enter(ctx, StateNavigating)
	span.SetAttributes(attribute.String("url", req.EmbedURL()), attribute.String("session", sess.ID()))
	if err := sess.Navigate(stepCtx, req.EmbedURL()); err != nil {
		return nil, r.fail(ctx, span, FailureNavigation, fmt.Errorf("navigate %s: %w", req.EmbedURL(), err))
	}
	span.End()

	stepCtx, span = r.enter(ctx, StateWaiting)
	span.SetAttributes(attribute.String("strategy", string(e.opts.Wait)))
	if err := e.waitRender(stepCtx, sess); err != nil {
		return nil, r.fail(ctx, span, FailureInternal, err)
	}
	span.End()

	stepCtx, span = r.enter(ctx, StateLocating)
	box, count, err := sess.Locate(stepCtx, e.opts.Selector)
	if err != nil {
		return nil, r.fail(ctx, span, FailureInternal, fmt.Errorf("locate %s: %w", e.opts.Selector, err))
	}
	if count == 0 {
		return nil, r.fail(ctx, span, FailureElementNotFound, fmt.Errorf("%w: no %s on %s", ErrElementNotFound, e.opts.Selector, req.EmbedURL()))
	}
	if count > 1 {
		e.logger.Printf("capture %s: %d elements match %s, using the first", req, count, e.opts.Selector)
	}
	span.SetAttributes(attribute.Int("box.x", box.X), attribute.Int("box.y", box.Y),
		attribute.Int("box.width", box.Width), attribute.Int("box.height", box.Height))
	span.End()

	stepCtx, span = r.enter(ctx, StateCapturing)
	shot, err := sess.Screenshot(stepCtx)
	if err != nil {
		return nil, r.fail(ctx, span, FailureInternal, fmt.Errorf("screenshot: %w", err))
	}
	raster, err := decodePNG(shot)
	if err != nil {
		return nil, r.fail(ctx, span, FailureInternal, err)
	}
	span.End()

	_, span = r.enter(ctx, StateCropping)
	cropped, err := Crop(raster, box)
	if err != nil {
		return nil, r.fail(ctx, span, FailureCropBounds, err)
	}
	span.End()

	_, span = r.enter(ctx, StateEncoding)
	data, err := Encode(cropped, e.opts.Format, e.opts.JPEGQuality)
	if err != nil {
		return nil, r.fail(ctx, span, FailureInternal, err)
	}
	span.End()

	r.state = StateDone
	bounds := cropped.Bounds()
	return &Image{Data: data, Width: bounds.Dx(), Height: bounds.Dy(), Format: e.opts.Format}, nil
}

func (e *Engine) waitRender(ctx context.Context, sess browser.Session) error {
	if e.opts.RenderWait == 0 {
		return nil
	}
	if e.opts.Wait == WaitFixed {
		return sleep(ctx, e.opts.RenderWait)
	}

	deadline := e.now().Add(e.opts.RenderWait)
	var last browser.Box
	seen := false
	for {
		box, count, err := sess.Locate(ctx, e.opts.Selector)
		if err == nil && count > 0 {
			if seen && box == last {
				return nil
			}
			last, seen = box, true
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			// Give up waiting; the locate step reports what is actually there.
			return nil
		}
		if err := sleep(ctx, min(e.opts.PollInterval, remaining)); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
