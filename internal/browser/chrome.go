package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Options configures every browser the manager launches.
type Options struct {
	ExecPath       string // empty lets chromedp find Chrome on PATH
	Headless       bool
	DisableGPU     bool
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Debug          bool
	Logger         *log.Logger
}

// DefaultOptions mirrors the settings the widget renders best with.
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		DisableGPU:     true,
		NoSandbox:      true,
		ViewportWidth:  500,
		ViewportHeight: 3000,
	}
}

// ChromeManager launches one headless Chrome per Acquire.
type ChromeManager struct {
	opts   Options
	logger *log.Logger
}

// NewManager returns a manager; zero viewport values fall back to the defaults.
func NewManager(opts Options) *ChromeManager {
	def := DefaultOptions()
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = def.ViewportWidth
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = def.ViewportHeight
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[BROWSER] ", log.LstdFlags)
	}
	return &ChromeManager{opts: opts, logger: logger}
}

func (m *ChromeManager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.opts.Headless),
		chromedp.Flag("disable-gpu", m.opts.DisableGPU),
		chromedp.Flag("no-sandbox", m.opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(m.opts.ViewportWidth, m.opts.ViewportHeight),
	)
	if m.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.opts.ExecPath))
	}
	if m.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.opts.UserAgent))
	}
	return opts
}

// Acquire starts a browser and opens a blank tab sized to the viewport. The
// browser lives as long as ctx or until Release, whichever comes first.
func (m *ChromeManager) Acquire(ctx context.Context) (Session, error) {
	if m.opts.ExecPath != "" {
		if _, err := os.Stat(m.opts.ExecPath); err != nil {
			return nil, fmt.Errorf("%w: executable %s: %v", ErrSessionInit, m.opts.ExecPath, err)
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)
	ctxOpts := []chromedp.ContextOption{chromedp.WithLogf(m.logger.Printf), chromedp.WithErrorf(m.logger.Printf)}
	if m.opts.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Printf))
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run launches the process, so start failures surface here
	// rather than on the first navigation.
	started := time.Now()
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(m.opts.ViewportWidth), int64(m.opts.ViewportHeight), chromedp.EmulateScale(1)),
	)
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionInit, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}

	s := &chromeSession{
		id:          uuid.NewString(),
		ctx:         browserCtx,
		cancel:      cancelBrowser,
		cancelAlloc: cancelAlloc,
	}
	m.logger.Printf("session %s started in %s", s.id, time.Since(started).Round(time.Millisecond))
	return s, nil
}

// Release closes the browser and removes its profile directory. Teardown
// problems are logged and swallowed.
func (m *ChromeManager) Release(s Session) {
	cs, ok := s.(*chromeSession)
	if !ok || cs == nil {
		return
	}
	if err := cs.close(); err != nil {
		m.logger.Printf("%v: session %s: %v", ErrTeardown, cs.id, err)
		return
	}
	m.logger.Printf("session %s released", cs.id)
}

type chromeSession struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc

	once     sync.Once
	closeErr error
}

func (s *chromeSession) ID() string { return s.id }

// scope derives a chromedp-capable context that is also cancelled with ctx.
func (s *chromeSession) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, done := s.scope(ctx)
	defer done()
	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

// locateJS measures the first match in viewport coordinates, rounded to
// whole pixels so the crop matches the reported size exactly.
const locateJS = `(() => {
	const nodes = document.querySelectorAll(%s);
	if (nodes.length === 0) { return {count: 0}; }
	const r = nodes[0].getBoundingClientRect();
	return {count: nodes.length, x: r.left, y: r.top, width: r.width, height: r.height};
})()`

type locateResult struct {
	Count  int     `json:"count"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *chromeSession) Locate(ctx context.Context, selector string) (Box, int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return Box{}, 0, err
	}
	runCtx, done := s.scope(ctx)
	defer done()

	var res locateResult
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(locateJS, quoted), &res)); err != nil {
		return Box{}, 0, err
	}
	if res.Count == 0 {
		return Box{}, 0, nil
	}
	x, y := math.Round(res.X), math.Round(res.Y)
	box := Box{
		X:      int(x),
		Y:      int(y),
		Width:  int(math.Round(res.X+res.Width) - x),
		Height: int(math.Round(res.Y+res.Height) - y),
	}
	return box, res.Count, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, done := s.scope(ctx)
	defer done()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) close() error {
	s.once.Do(func() {
		defer s.cancelAlloc()
		defer s.cancel()
		defer func() {
			if r := recover(); r != nil {
				s.closeErr = fmt.Errorf("panic during teardown: %v", r)
			}
		}()
		err := chromedp.Cancel(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
