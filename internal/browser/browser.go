// Package browser owns headless Chrome sessions. Every Acquire launches a
// dedicated browser process that lives until the matching Release; sessions
// are never pooled or shared between requests.
package browser

import (
	"context"
	"errors"
)

// ErrSessionInit wraps every failure to bring a browser up.
var ErrSessionInit = errors.New("browser session init failed")

// ErrTeardown is logged when a session could not be closed cleanly. It never
// reaches callers.
var ErrTeardown = errors.New("browser session teardown failed")

// Box is an element bounding box in viewport pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Session is one isolated rendering context.
type Session interface {
	// ID is unique per Acquire.
	ID() string
	// Navigate loads url and returns once the main frame has loaded.
	Navigate(ctx context.Context, url string) error
	// Locate returns the bounding box of the first element matching the CSS
	// selector and the number of matches. A zero count is not an error.
	Locate(ctx context.Context, selector string) (Box, int, error)
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Manager provisions and tears down sessions.
type Manager interface {
	Acquire(ctx context.Context) (Session, error)
	// Release must be safe to call with nil or twice and never fails.
	Release(Session)
}
