package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/postshot/internal/capture"
)

// Server exposes the capture pipeline over HTTP.
type Server struct {
	e      *echo.Echo
	addr   string
	logger *log.Logger
}

// Options configures the HTTP server.
type Options struct {
	Address string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *log.Logger
}

// New builds the echo instance and registers all routes.
func New(capturer capture.Capturer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	addr := opts.Address
	if addr == "" {
		addr = ":10001"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	ch := &CapturesHandler{Capturer: capturer, Logger: logger}
	ch.Register(e.Group("/api/captures"))

	return &Server{e: e, addr: addr, logger: logger}
}

// Handler returns the underlying http handler.
func (s *Server) Handler() http.Handler { return s.e }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.addr)
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// apiError carries the failure kind alongside the http status.
type apiError struct {
	Code    int
	Kind    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		kind := ""
		var ae *apiError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			code, msg, kind = ae.Code, ae.Message, ae.Kind
		case errors.As(err, &he):
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if c.Response().Committed {
			return
		}
		body := map[string]string{"error": msg}
		if kind != "" {
			body["kind"] = kind
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}
