package api

import (
	"context"
	"net/http"
	"strconv"
)

// ContentTypeXLSX is the media type of the exported workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportDependencies defines the rendered artefacts.
type ExportDependencies interface {
	ChartPNG(ctx context.Context) ([]byte, error)
	ExportXLSX(ctx context.Context) ([]byte, error)
}

// ExportHandler serves the progress chart and the spreadsheet export.
type ExportHandler struct {
	deps ExportDependencies
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies) *ExportHandler {
	return &ExportHandler{deps: deps}
}

// HandleChart handles GET /api/chart.png requests.
func (h *ExportHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_chart"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	b, err := h.deps.ChartPNG(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeBlob(w, "image/png", b)
}

// HandleWorkbook handles GET /api/export.xlsx requests.
func (h *ExportHandler) HandleWorkbook(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_export"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	b, err := h.deps.ExportXLSX(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="scores.xlsx"`)
	writeBlob(w, ContentTypeXLSX, b)
}

func writeBlob(w http.ResponseWriter, contentType string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
