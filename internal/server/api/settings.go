package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/detectcam/internal/config"
	"github.com/ayusman/detectcam/internal/store"
)

// ThresholdsKey is the settings key holding the persisted thresholds.
const ThresholdsKey = "thresholds"

// SettingsHandler serves GET and PUT /api/settings.
type SettingsHandler struct {
	ctrl   Controller
	store  *store.Store
	logger *zap.Logger
}

// NewSettingsHandler creates a SettingsHandler. s may be nil, in which case
// updates apply only until restart.
func NewSettingsHandler(ctrl Controller, s *store.Store, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{ctrl: ctrl, store: s, logger: logger}
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctrl.Thresholds())
	case http.MethodPut:
		h.update(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// update applies a partial update: omitted fields keep their current value.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	th := h.ctrl.Thresholds()
	if err := json.NewDecoder(r.Body).Decode(&th); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.ctrl.SetThresholds(th); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Settings().SetJSON(ThresholdsKey, th); err != nil {
			h.logger.Warn("failed to persist thresholds", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, th)
}

// LoadThresholds returns the persisted thresholds, or fallback when none are
// stored or they no longer validate.
func LoadThresholds(s *store.Store, fallback config.Thresholds) (config.Thresholds, error) {
	if s == nil {
		return fallback, nil
	}
	var th config.Thresholds
	err := s.Settings().GetJSON(ThresholdsKey, &th)
	if errors.Is(err, store.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	if err := th.Validate(); err != nil {
		return fallback, err
	}
	return th, nil
}
