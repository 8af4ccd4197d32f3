package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/detectcam/internal/store"
)

const defaultListLimit = 50

// SessionHandler serves the capture history under /api/sessions.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and /api/sessions/{id}/detections.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, id)
		case http.MethodDelete:
			h.delete(w, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "detections":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.detections(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type sessionResponse struct {
	*store.Session
	Labels []store.LabelCount `json:"labels"`
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, defaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	counts, err := h.store.Detections().CountByLabel(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count detections")
		return
	}
	if counts == nil {
		counts = []store.LabelCount{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Labels: counts})
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// detections handles GET /api/sessions/{id}/detections.
func (h *SessionHandler) detections(w http.ResponseWriter, r *http.Request, id string) {
	limit, ok := queryLimit(r, 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	dets, err := h.store.Detections().ListBySession(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}
	if dets == nil {
		dets = []store.Detection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": dets})
}
