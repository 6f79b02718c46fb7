package capture

import (
	"fmt"
	"time"
)

// State is a step of a single capture.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateWaiting
	StateLocating
	StateCapturing
	StateCropping
	StateEncoding
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "navigating", "waiting", "locating", "capturing", "cropping", "encoding", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// FailureKind discriminates capture failures so callers can branch without
// looking at messages.
type FailureKind int

const (
	FailureInternal FailureKind = iota
	FailureSessionInit
	FailureNavigation
	FailureElementNotFound
	FailureCropBounds
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureSessionInit:
		return "session_init"
	case FailureNavigation:
		return "navigation"
	case FailureElementNotFound:
		return "element_not_found"
	case FailureCropBounds:
		return "crop_bounds"
	case FailureTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Failure describes why a capture did not produce an image.
type Failure struct {
	Kind   FailureKind
	At     State // step that was running
	Reason string
	err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("capture %s while %s: %s", f.Kind, f.At, f.Reason)
}

func (f *Failure) Unwrap() error { return f.err }

func newFailure(kind FailureKind, at State, err error) *Failure {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return &Failure{Kind: kind, At: at, Reason: reason, err: err}
}

// Image is an encoded crop of the post bubble.
type Image struct {
	Data   []byte
	Width  int
	Height int
	Format Format
}

// ContentType is the MIME type of Data.
func (i Image) ContentType() string { return i.Format.ContentType() }

// Outcome is the result of one capture: exactly one of Image and Failure is
// set.
type Outcome struct {
	Request   Request
	SessionID string
	Image     *Image
	Failure   *Failure
	Elapsed   time.Duration
}

// OK reports success.
func (o Outcome) OK() bool { return o.Failure == nil && o.Image != nil }

// State is StateDone on success and StateFailed otherwise.
func (o Outcome) State() State {
	if o.OK() {
		return StateDone
	}
	return StateFailed
}

// Caption is the canonical post link that accompanies the image.
func (o Outcome) Caption() string { return o.Request.CanonicalURL() }
