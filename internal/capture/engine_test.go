package capture

import (
	"context"
	"testing"
	"time"

	"github.com/mohammad-safakhou/postshot/internal/browser"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEnginePollWaitsForStableGeometry(t *testing.T) {
	final := browser.Box{X: 10, Y: 20, Width: 480, Height: 300}
	sess := &fakeSession{
		id: "s1",
		// the widget grows while images load, then settles
		boxes: []browser.Box{
			{X: 10, Y: 20, Width: 480, Height: 120},
			{X: 10, Y: 20, Width: 480, Height: 250},
			final,
		},
		count: 1,
		shot:  fixturePNG(t, 500, 3000, final),
	}
	e := NewEngine(EngineOptions{Wait: WaitPoll, RenderWait: 5 * time.Second, PollInterval: time.Millisecond, Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)

	out := e.Capture(context.Background(), sess, req)
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Failure)
	}
	if out.Image.Height != 300 {
		t.Fatalf("captured before geometry settled: height %d", out.Image.Height)
	}
	// three polls to see 120, 250, 300, one more to confirm 300, then locate.
	if sess.locates != 5 {
		t.Fatalf("expected 5 locate calls, got %d", sess.locates)
	}
}

func TestEnginePollGivesUpAtRenderWait(t *testing.T) {
	sess := &fakeSession{id: "s1", count: 0}
	e := NewEngine(EngineOptions{Wait: WaitPoll, RenderWait: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond, Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)

	start := time.Now()
	out := e.Capture(context.Background(), sess, req)
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned before the render wait elapsed")
	}
	if out.OK() || out.Failure.Kind != FailureElementNotFound {
		t.Fatalf("expected element_not_found, got %+v", out.Failure)
	}
}

func TestEngineFixedWaitSleeps(t *testing.T) {
	box := browser.Box{Width: 4, Height: 4}
	sess := &fakeSession{id: "s1", boxes: []browser.Box{box}, count: 1, shot: fixturePNG(t, 10, 10, box)}
	e := NewEngine(EngineOptions{Wait: WaitFixed, RenderWait: 20 * time.Millisecond, Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)

	start := time.Now()
	out := e.Capture(context.Background(), sess, req)
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("fixed wait was skipped")
	}
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Failure)
	}
	if sess.locates != 1 {
		t.Fatalf("fixed wait should not poll, got %d locate calls", sess.locates)
	}
}

func TestEngineWaitInterruptedByDeadline(t *testing.T) {
	sess := &fakeSession{id: "s1", count: 0}
	e := NewEngine(EngineOptions{Wait: WaitFixed, RenderWait: time.Minute, Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := e.Capture(ctx, sess, req)
	if out.OK() || out.Failure.Kind != FailureTimeout || out.Failure.At != StateWaiting {
		t.Fatalf("expected timeout while waiting, got %+v", out.Failure)
	}
}

func TestEngineRejectsMissingInputs(t *testing.T) {
	e := NewEngine(EngineOptions{Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)
	if out := e.Capture(context.Background(), nil, req); out.OK() || out.Failure.Kind != FailureSessionInit {
		t.Fatalf("nil session should fail as session_init, got %+v", out.Failure)
	}
	if out := e.Capture(context.Background(), &fakeSession{id: "s"}, Request{}); out.OK() || out.Failure.Kind != FailureInternal {
		t.Fatalf("zero request should fail, got %+v", out.Failure)
	}
}

func TestEngineJPEGOutput(t *testing.T) {
	box := browser.Box{X: 2, Y: 2, Width: 16, Height: 8}
	sess := &fakeSession{id: "s1", boxes: []browser.Box{box}, count: 1, shot: fixturePNG(t, 32, 32, box)}
	e := NewEngine(EngineOptions{Format: FormatJPEG, JPEGQuality: 80, Logger: quiet})
	req, _ := NewRequest("examplechannel", 42)

	out := e.Capture(context.Background(), sess, req)
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Failure)
	}
	if out.Image.ContentType() != "image/jpeg" || out.Image.Width != 16 || out.Image.Height != 8 {
		t.Fatalf("unexpected image %s %dx%d", out.Image.ContentType(), out.Image.Width, out.Image.Height)
	}
}

func TestStateNames(t *testing.T) {
	order := []State{StateIdle, StateNavigating, StateWaiting, StateLocating, StateCapturing, StateCropping, StateEncoding, StateDone}
	want := []string{"idle", "navigating", "waiting", "locating", "capturing", "cropping", "encoding", "done"}
	for i, s := range order {
		if s.String() != want[i] {
			t.Fatalf("state %d named %q, want %q", i, s, want[i])
		}
		if s.Terminal() != (s == StateDone) {
			t.Fatalf("unexpected Terminal() for %s", s)
		}
	}
	if !StateFailed.Terminal() {
		t.Fatalf("failed must be terminal")
	}
}

func TestEnginePanicEndsStepSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	box := browser.Box{Width: 5, Height: 5}
	sess := &fakeSession{id: "s1", boxes: []browser.Box{box}, count: 1, shotPanic: true}
	e := NewEngine(EngineOptions{Logger: quiet, Tracer: tp.Tracer("test")})
	req, _ := NewRequest("examplechannel", 3)

	out := e.Capture(context.Background(), sess, req)
	if out.OK() || out.Failure.Kind != FailureInternal || out.Failure.At != StateCapturing {
		t.Fatalf("expected internal failure at capturing, got %+v", out.Failure)
	}
	if out.SessionID != "s1" {
		t.Fatalf("expected session id s1, got %q", out.SessionID)
	}

	var found bool
	for _, s := range rec.Ended() {
		if s.Name() == "capture.capturing" {
			found = true
			if s.Status().Code != codes.Error {
				t.Fatalf("capturing span status %v, want error", s.Status().Code)
			}
		}
	}
	if !found {
		t.Fatalf("capturing span was never ended")
	}
	for _, s := range rec.Started() {
		if s.EndTime().IsZero() {
			t.Fatalf("span %s left open", s.Name())
		}
	}
}
