package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/stemma/internal/apperr"
	"github.com/starford/stemma/internal/chartservice"
	"github.com/starford/stemma/internal/models"
	"github.com/starford/stemma/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	svc *chartservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *chartservice.Service) *Handler {
	return &Handler{svc: svc}
}

// chartPath extracts the chart path from the URL (everything after /api/charts/).
// Supports encoded slashes from OpenAPI clients (e.g. teams%2Feng.stemma).
func chartPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// chartParam extracts the chart path from the {chart} route segment used by
// operation endpoints. Charts in subfolders escape their slashes as %2F.
func chartParam(r *http.Request) string {
	raw := chi.URLParam(r, "chart")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListCharts handles GET /api/charts.
//
//	@Summary		List charts with optional pagination
//	@Tags			charts
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	ChartListResponse
//	@Security		BearerAuth
//	@Router			/charts [get]
func (h *Handler) ListCharts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	charts, total, err := h.svc.ListCharts(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list charts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"charts": charts,
		"total":  total,
	})
}

// GetChart handles GET /api/charts/*.
//
//	@Summary		Get a single chart by path
//	@Tags			charts
//	@Produce		json
//	@Param			path	path		string	true	"Chart path"
//	@Success		200		{object}	ChartDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [get]
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	path := chartPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	chart, err := h.svc.GetChart(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get chart failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// CreateChart handles POST /api/charts.
//
//	@Summary		Create a new chart
//	@Tags			charts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateChartRequest	true	"Chart to create"
//	@Success		201		{object}	ChartDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts [post]
func (h *Handler) CreateChart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	if !strings.HasSuffix(req.Path, storage.Ext) {
		writeJSON(w, http.StatusBadRequest, errorBody("chart path must end in "+storage.Ext))
		return
	}
	chart, err := h.svc.CreateChart(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("chart already exists"))
		} else {
			slog.Error("create chart failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, chart)
}

// UpdateChart handles PUT /api/charts/*.
//
//	@Summary		Update a chart with optimistic concurrency
//	@Tags			charts
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Chart path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body	body		UpdateChartRequest	true	"Updated content"
//	@Success		200		{object}	ChartDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [put]
func (h *Handler) UpdateChart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := chartPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	chart, err := h.svc.UpdateChart(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update chart failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// DeleteChart handles DELETE /api/charts/*.
//
//	@Summary		Delete a chart
//	@Tags			charts
//	@Param			path	path	string	true	"Chart path"
//	@Success		204		"Chart deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [delete]
func (h *Handler) DeleteChart(w http.ResponseWriter, r *http.Request) {
	path := chartPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteChart(r.Context(), path); err != nil {
		slog.Error("delete chart failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveRecord handles POST /api/charts/{chart}/ops/move.
//
//	@Summary		Move a record one slot among its siblings
//	@Tags			operations
//	@Accept			json
//	@Produce		json
//	@Param			chart	path		string		true	"Chart path (%2F-escaped)"
//	@Param			body	body		MoveRequest	true	"Record and direction"
//	@Success		200		{object}	ChartDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/ops/move [post]
func (h *Handler) MoveRecord(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	dir := models.Direction(req.Direction)
	if req.ID == "" || !dir.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("id and direction (up or down) are required"))
		return
	}
	chart, err := h.svc.MoveSibling(r.Context(), path, req.ID, dir)
	if err != nil {
		opError(w, "move record", path, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// SwapRecords handles POST /api/charts/{chart}/ops/swap.
//
//	@Summary		Swap two records' places in the hierarchy
//	@Tags			operations
//	@Accept			json
//	@Produce		json
//	@Param			chart	path		string		true	"Chart path (%2F-escaped)"
//	@Param			body	body		SwapRequest	true	"Records to swap"
//	@Success		200		{object}	ChartDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/ops/swap [post]
func (h *Handler) SwapRecords(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.A == "" || req.B == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("both record ids are required"))
		return
	}
	chart, err := h.svc.SwapRecords(r.Context(), path, req.A, req.B)
	if err != nil {
		opError(w, "swap records", path, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// RenderChart handles GET /api/charts/{chart}/render.
//
//	@Summary		Render a chart
//	@Tags			operations
//	@Produce		image/svg+xml
//	@Param			chart	path		string	true	"Chart path (%2F-escaped)"
//	@Param			format	query		string	false	"Output format"	Enums(svg, png, dot)
//	@Success		200		{string}	binary
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/render [get]
func (h *Handler) RenderChart(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	switch format := r.URL.Query().Get("format"); format {
	case "", "svg":
		data, err := h.svc.RenderSVG(r.Context(), path)
		if err != nil {
			opError(w, "render chart", path, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(data)
	case "png":
		data, err := h.svc.RenderPNG(r.Context(), path)
		if err != nil {
			opError(w, "render chart", path, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	case "dot":
		dot, err := h.svc.RenderDOT(r.Context(), path)
		if err != nil {
			opError(w, "render chart", path, err)
			return
		}
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(dot))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be svg, png or dot"))
	}
}

// ValidateChart handles GET /api/charts/{chart}/validate.
//
//	@Summary		Validate a chart against its schema
//	@Tags			operations
//	@Produce		json
//	@Param			chart	path		string	true	"Chart path (%2F-escaped)"
//	@Success		200		{object}	ValidationReport
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/validate [get]
func (h *Handler) ValidateChart(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	report, err := h.svc.Validate(r.Context(), path)
	if err != nil {
		opError(w, "validate chart", path, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SwitchView handles POST /api/charts/{chart}/view.
//
//	@Summary		Switch a chart between tree and graph layout
//	@Tags			operations
//	@Accept			json
//	@Param			chart	path	string		true	"Chart path (%2F-escaped)"
//	@Param			body	body	ViewRequest	true	"Layout mode"
//	@Success		204		"View switched"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/view [post]
func (h *Handler) SwitchView(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	view := models.ViewMode(req.View)
	if !view.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("view must be tree or graph"))
		return
	}
	if err := h.svc.SwitchView(r.Context(), path, view); err != nil {
		opError(w, "switch view", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetReorderMode handles POST /api/charts/{chart}/reorder.
//
//	@Summary		Toggle reorder mode for drag gestures
//	@Tags			operations
//	@Accept			json
//	@Param			chart	path	string			true	"Chart path (%2F-escaped)"
//	@Param			body	body	ReorderRequest	true	"Reorder flag"
//	@Success		204		"Mode changed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/reorder [post]
func (h *Handler) SetReorderMode(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.EnableReorderMode(r.Context(), path, req.Enabled); err != nil {
		opError(w, "set reorder mode", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPosition handles POST /api/charts/{chart}/positions.
//
//	@Summary		Pin a dragged node at a coordinate
//	@Tags			operations
//	@Accept			json
//	@Param			chart	path	string			true	"Chart path (%2F-escaped)"
//	@Param			body	body	PositionRequest	true	"Record id and coordinate"
//	@Success		204		"Position saved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/positions [post]
func (h *Handler) SetPosition(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	if err := h.svc.SetPosition(r.Context(), path, req.ID, models.Position{X: req.X, Y: req.Y}); err != nil {
		opError(w, "set position", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReportMeasurements handles POST /api/charts/{chart}/measurements.
//
//	@Summary		Report measured card heights for layout refinement
//	@Tags			operations
//	@Accept			json
//	@Param			chart	path	string				true	"Chart path (%2F-escaped)"
//	@Param			body	body	MeasurementsRequest	true	"Heights keyed by record id"
//	@Success		202		"Measurements accepted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/measurements [post]
func (h *Handler) ReportMeasurements(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	var req MeasurementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Heights) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("heights are required"))
		return
	}
	if err := h.svc.ReportMeasurements(r.Context(), path, req.Heights); err != nil {
		opError(w, "report measurements", path, err)
		return
	}
	// The re-render is debounced and arrives over SSE.
	w.WriteHeader(http.StatusAccepted)
}

// GetRecord handles GET /api/charts/{chart}/records/{id}.
//
//	@Summary		Resolve a clicked node to its record
//	@Tags			operations
//	@Produce		json
//	@Param			chart	path		string	true	"Chart path (%2F-escaped)"
//	@Param			id		path		string	true	"Record id"
//	@Success		200		{object}	RecordResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{chart}/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	path := chartParam(r)
	id := chi.URLParam(r, "id")
	record, err := h.svc.GetRecord(r.Context(), path, id)
	if err != nil {
		opError(w, "get record", path, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record": record,
	})
}
