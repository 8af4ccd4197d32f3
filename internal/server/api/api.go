// Package api provides the JSON handlers of the detection service.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/labels"
)

// Controller is the part of the capture loop the handlers drive.
type Controller interface {
	Start() error
	Stop()
	Ready() bool
	Stats() app.Stats
	Thresholds() config.Thresholds
	SetThresholds(th config.Thresholds) error
	Labels() labels.Table
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// queryLimit parses ?limit=, falling back to def when absent.
func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
