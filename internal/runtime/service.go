package runtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/postshot/config"
	"github.com/mohammad-safakhou/postshot/internal/browser"
	"github.com/mohammad-safakhou/postshot/internal/capture"
)

// SignalContext is cancelled on SIGINT/SIGTERM.
func SignalContext(parent context.Context, service string) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			log.Printf("[%s] shutdown requested", service)
		}
	}()
	return ctx, stop
}

// BrowserOptions maps configuration onto browser.Options.
func BrowserOptions(cfg *config.Config) browser.Options {
	return browser.Options{
		ExecPath:       cfg.Browser.ExecPath,
		Headless:       cfg.Browser.Headless,
		DisableGPU:     cfg.Browser.DisableGPU,
		NoSandbox:      cfg.Browser.NoSandbox,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		UserAgent:      cfg.Browser.UserAgent,
		Debug:          cfg.General.Debug,
		Logger:         log.New(log.Writer(), "[BROWSER] ", log.LstdFlags),
	}
}

// EngineOptions maps configuration onto capture.EngineOptions.
func EngineOptions(cfg *config.Config) (capture.EngineOptions, error) {
	format, err := capture.ParseFormat(cfg.Capture.Format)
	if err != nil {
		return capture.EngineOptions{}, err
	}
	return capture.EngineOptions{
		Selector:     cfg.Capture.Selector,
		Wait:         capture.WaitStrategy(cfg.Capture.WaitStrategy),
		RenderWait:   cfg.Capture.RenderWait,
		PollInterval: cfg.Capture.PollInterval,
		Format:       format,
		JPEGQuality:  cfg.Capture.JPEGQuality,
		Logger:       log.New(log.Writer(), "[CAPTURE] ", log.LstdFlags),
	}, nil
}

// NewCaptureService wires browser sessions, the engine and metrics together.
// tele may be nil, in which case the global otel providers are used.
func NewCaptureService(cfg *config.Config, tele *Telemetry) (*capture.Service, error) {
	engineOpts, err := EngineOptions(cfg)
	if err != nil {
		return nil, err
	}
	var metrics *capture.Metrics
	if tele != nil {
		engineOpts.Tracer = tele.Tracer
		metrics, err = capture.NewMetrics(tele.Meter)
		if err != nil {
			return nil, fmt.Errorf("capture metrics: %w", err)
		}
	}
	return capture.NewService(
		browser.NewManager(BrowserOptions(cfg)),
		capture.NewEngine(engineOpts),
		capture.ServiceOptions{
			Timeout: cfg.Capture.Timeout,
			Metrics: metrics,
			Logger:  engineOpts.Logger,
		},
	), nil
}
