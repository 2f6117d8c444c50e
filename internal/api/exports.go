package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/starford/stemma/internal/chartservice"
	"github.com/starford/stemma/internal/storage"
)

const exportsDir = "exports"

// ExportHandler renders charts into files under the library's exports
// directory and serves them back.
type ExportHandler struct {
	svc         *chartservice.Service
	libraryRoot string
}

// NewExportHandler creates a handler rooted at the library directory.
func NewExportHandler(svc *chartservice.Service, libraryRoot string) *ExportHandler {
	return &ExportHandler{svc: svc, libraryRoot: libraryRoot}
}

// exportPath returns the absolute path to the exports directory.
func (h *ExportHandler) exportPath() string {
	return filepath.Join(h.libraryRoot, exportsDir)
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the exports dir.
func (h *ExportHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	// Reject anything with path separators or traversal.
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.exportPath(), cleaned)
	// Double-check the resolved path is under the exports dir.
	if !strings.HasPrefix(abs, h.exportPath()+string(os.PathSeparator)) && abs != h.exportPath() {
		return "", fmt.Errorf("path escapes exports directory")
	}
	return abs, nil
}

// Export handles POST /api/charts/{chart}/export.
//
//	@Summary		Render a chart to a downloadable file
//	@Tags			operations
//	@Accept			json
//	@Produce		json
//	@Param			chart	path		string			true	"Chart path (%2F-escaped)"
//	@Param			body	body		ExportRequest	false	"Output format, svg by default"
//	@Success		201		{object}	ExportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/export [post]
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)

	var req ExportRequest
	// An empty body means the default format.
	_ = json.NewDecoder(r.Body).Decode(&req)
	format := req.Format
	if format == "" {
		format = "svg"
	}

	var data []byte
	var err error
	switch format {
	case "svg":
		data, err = h.svc.RenderSVG(r.Context(), path)
	case "png":
		data, err = h.svc.RenderPNG(r.Context(), path)
	case "dot":
		var dot string
		dot, err = h.svc.RenderDOT(r.Context(), path)
		data = []byte(dot)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be svg, png or dot"))
		return
	}
	if err != nil {
		opError(w, "export chart", path, err)
		return
	}

	base := strings.TrimSuffix(filepath.Base(path), storage.Ext)
	filename := fmt.Sprintf("%s-%s.%s", base, uuid.New().String(), format)
	abs, err := h.safeName(filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.MkdirAll(h.exportPath(), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create exports dir"))
		return
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write export"))
		return
	}

	writeJSON(w, http.StatusCreated, ExportResponse{
		Filename: filename,
		Size:     int64(len(data)),
		URL:      "/api/exports/" + filename,
	})
}

// ServeFile handles GET /api/exports/{filename}.
//
//	@Summary		Download a previously exported chart file
//	@Tags			operations
//	@Param			filename	path	string	true	"Export filename"
//	@Success		200			{string}	binary
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/exports/{filename} [get]
func (h *ExportHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	abs, err := h.safeName(filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
