package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/capture"
	"github.com/ayusman/detectcam/internal/detector"
)

// CaptureHandler serves /api/status and /api/capture/{start,stop}.
type CaptureHandler struct {
	ctrl   Controller
	logger *zap.Logger
}

// NewCaptureHandler creates a CaptureHandler for ctrl.
func NewCaptureHandler(ctrl Controller, logger *zap.Logger) *CaptureHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureHandler{ctrl: ctrl, logger: logger}
}

type statusResponse struct {
	Ready bool `json:"ready"`
	app.Stats
}

func (h *CaptureHandler) status() statusResponse {
	return statusResponse{Ready: h.ctrl.Ready(), Stats: h.ctrl.Stats()}
}

// ServeHTTP routes on the request path.
func (h *CaptureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/status":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, h.status())

	case "/api/capture/start":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.start(w)

	case "/api/capture/stop":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.ctrl.Stop()
		writeJSON(w, http.StatusOK, h.status())

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *CaptureHandler) start(w http.ResponseWriter) {
	err := h.ctrl.Start()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.status())
	case errors.Is(err, detector.ErrModelNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, capture.ErrCameraAccessDenied):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("failed to start capture", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start capture")
	}
}
