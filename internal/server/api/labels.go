package api

import (
	"net/http"

	"github.com/ayusman/detectcam/internal/labels"
)

type labelResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// LabelsHandler serves GET /api/labels: every class with its overlay color.
type LabelsHandler struct {
	body []labelResponse
}

// NewLabelsHandler precomputes the label list.
func NewLabelsHandler(table labels.Table, palette labels.Palette) *LabelsHandler {
	body := make([]labelResponse, 0, table.Len())
	for id, name := range table {
		body = append(body, labelResponse{ID: id, Name: name, Color: labels.Hex(palette.Color(id))})
	}
	return &LabelsHandler{body: body}
}

func (h *LabelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": h.body})
}
