package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayusman/detectcam/internal/store"
)

func seedSession(t *testing.T, s *store.Store, id string, startedAt time.Time) {
	t.Helper()
	if err := s.Sessions().Create(&store.Session{ID: id, StartedAt: startedAt}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	dets := []store.Detection{
		{ClassID: 0, Label: "person", Confidence: 0.9, X: 1, Y: 2, W: 3, H: 4},
		{ClassID: 2, Label: "car", Confidence: 0.7, X: 5, Y: 6, W: 7, H: 8},
	}
	if err := s.Detections().Create(id, 1, dets); err != nil {
		t.Fatalf("failed to create detections: %v", err)
	}
}

func TestSessionHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	t.Run("empty list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var resp struct {
			Sessions []store.Session `json:"sessions"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Sessions == nil || len(resp.Sessions) != 0 {
			t.Errorf("expected empty non-null list, got %v", resp.Sessions)
		}
	})

	now := time.Now()
	seedSession(t, s, "a", now.Add(-time.Minute))
	seedSession(t, s, "b", now)

	t.Run("newest first with limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var resp struct {
			Sessions []store.Session `json:"sessions"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "b" {
			t.Errorf("expected only session b, got %+v", resp.Sessions)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=abc", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestSessionHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	seedSession(t, s, "a", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/a", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		ID     string             `json:"id"`
		Labels []store.LabelCount `json:"labels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "a" {
		t.Errorf("expected id a, got %s", resp.ID)
	}
	if len(resp.Labels) != 2 {
		t.Errorf("expected 2 label counts, got %d", len(resp.Labels))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_Detections(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	seedSession(t, s, "a", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/a/detections", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Detections []store.Detection `json:"detections"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(resp.Detections))
	}
	if resp.Detections[1].Label != "car" {
		t.Errorf("expected second detection car, got %s", resp.Detections[1].Label)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/missing/detections", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	seedSession(t, s, "a", time.Now())

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/a", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/a", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_UnknownRoute(t *testing.T) {
	handler := NewSessionHandler(newTestStore(t))

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/sessions/a/other", http.StatusNotFound},
		{http.MethodPost, "/api/sessions", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/sessions/a", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/sessions/a/detections", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}
