package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/postshot/internal/browser"
)

var bubbleColor = color.NRGBA{R: 0x33, G: 0xaa, B: 0x66, A: 0xff}

// fixturePNG renders a w x h white page with box filled in bubbleColor.
func fixturePNG(t *testing.T, w, h int, box browser.Box) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			if x >= box.X && x < box.X+box.Width && y >= box.Y && y < box.Y+box.Height {
				c = bubbleColor
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

type fakeSession struct {
	id string

	navigateErr   error
	navigateBlock bool // block until ctx is done
	boxes         []browser.Box
	count         int
	locateErr     error
	shot          []byte
	shotErr       error
	shotPanic     bool

	mu        sync.Mutex
	navigated []string
	locates   int
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	s.mu.Unlock()
	if s.navigateBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.navigateErr
}

// Locate walks through boxes on successive calls and sticks to the last one.
func (s *fakeSession) Locate(ctx context.Context, selector string) (browser.Box, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.locates
	s.locates++
	if s.locateErr != nil {
		return browser.Box{}, 0, s.locateErr
	}
	if s.count == 0 || len(s.boxes) == 0 {
		return browser.Box{}, 0, nil
	}
	if n >= len(s.boxes) {
		n = len(s.boxes) - 1
	}
	return s.boxes[n], s.count, nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.shotPanic {
		panic("renderer crashed")
	}
	return s.shot, s.shotErr
}

// fakeManager hands out pre-built sessions and counts releases per id.
type fakeManager struct {
	mu         sync.Mutex
	next       func(n int) *fakeSession
	acquireErr error
	acquired   []string
	released   map[string]int
}

func newFakeManager(next func(n int) *fakeSession) *fakeManager {
	return &fakeManager{next: next, released: map[string]int{}}
}

func (m *fakeManager) Acquire(ctx context.Context) (browser.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	s := m.next(len(m.acquired))
	if s.id == "" {
		s.id = fmt.Sprintf("session-%d", len(m.acquired)+1)
	}
	m.acquired = append(m.acquired, s.id)
	return s, nil
}

func (m *fakeManager) Release(s browser.Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[s.ID()]++
}

func (m *fakeManager) assertBalanced(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.acquired {
		if got := m.released[id]; got != 1 {
			t.Fatalf("session %s released %d times, want exactly 1", id, got)
		}
	}
	if len(m.released) != len(m.acquired) {
		t.Fatalf("released %d sessions but acquired %d", len(m.released), len(m.acquired))
	}
}

var errBoom = errors.New("boom")
