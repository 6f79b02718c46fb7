package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/postshot/internal/capture"
)

// CapturesHandler runs one capture per request and returns the image.
type CapturesHandler struct {
	Capturer capture.Capturer
	Logger   *log.Logger
}

// Register mounts capture endpoints under the provided group.
func (h *CapturesHandler) Register(g *echo.Group) {
	g.POST("", h.create)
}

type captureRequest struct {
	URL       string `json:"url"`
	Channel   string `json:"channel"`
	MessageID int    `json:"message_id"`
}

func (r captureRequest) toRequest() (capture.Request, error) {
	if r.URL != "" {
		return capture.ParseRequest(r.URL)
	}
	return capture.NewRequest(r.Channel, r.MessageID)
}

// create captures a public channel post.
//
//	@Summary  Capture a channel post
//	@Tags     captures
//	@Accept   json
//	@Produce  image/png
//	@Success  200
//	@Failure  400 {object} map[string]string
//	@Failure  422 {object} map[string]string
//	@Router   /api/captures [post]
func (h *CapturesHandler) create(c echo.Context) error {
	var body captureRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req, err := body.toRequest()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out := h.Capturer.Capture(c.Request().Context(), req)
	if !out.OK() {
		if out.Failure != nil && h.Logger != nil {
			h.Logger.Printf("capture %s session %q failed at %s: %s", out.Request, out.SessionID, out.Failure.At, out.Failure.Reason)
		}
		return failureError(out)
	}

	res := c.Response()
	res.Header().Set("X-Post-URL", out.Caption())
	res.Header().Set("X-Capture-Duration", out.Elapsed.String())
	return c.Blob(http.StatusOK, out.Image.ContentType(), out.Image.Data)
}

// Failure messages shown to API clients. Reasons stay in the log.
const (
	msgPostNotFound  = "could not capture this post, it may have been deleted or is not public"
	msgNavigation    = "could not load the post"
	msgTimeout       = "capture timed out"
	msgUnavailable   = "capture is temporarily unavailable"
	msgCaptureFailed = "failed to capture the post"
)

func failureError(out capture.Outcome) error {
	kind := capture.FailureInternal
	if out.Failure != nil {
		kind = out.Failure.Kind
	}
	return &apiError{Code: statusFor(kind), Kind: kind.String(), Message: failureMessage(kind)}
}

func failureMessage(kind capture.FailureKind) string {
	switch kind {
	case capture.FailureElementNotFound:
		return msgPostNotFound
	case capture.FailureNavigation:
		return msgNavigation
	case capture.FailureTimeout:
		return msgTimeout
	case capture.FailureSessionInit:
		return msgUnavailable
	default:
		return msgCaptureFailed
	}
}

func statusFor(kind capture.FailureKind) int {
	switch kind {
	case capture.FailureElementNotFound:
		return http.StatusUnprocessableEntity
	case capture.FailureNavigation:
		return http.StatusBadGateway
	case capture.FailureTimeout:
		return http.StatusGatewayTimeout
	case capture.FailureSessionInit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
