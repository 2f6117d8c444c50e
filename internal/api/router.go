package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/stemma/internal/chartservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// libraryRoot is used to resolve the exports directory.
func NewRouter(svc *chartservice.Service, authEnabled bool, token string, sseHandler http.Handler, libraryRoot string) chi.Router {
	h := NewHandler(svc)
	eh := NewExportHandler(svc, libraryRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Charts CRUD. The wildcard routes accept slashes, so charts can live
	// in subfolders.
	r.Get("/charts", h.ListCharts)
	r.Post("/charts", h.CreateChart)
	r.Get("/charts/*", h.GetChart)
	r.Put("/charts/*", h.UpdateChart)
	r.Delete("/charts/*", h.DeleteChart)

	// Chart operations. Here the chart path is a single {chart} segment;
	// subfolder charts escape their slashes as %2F.
	r.Post("/charts/{chart}/ops/move", h.MoveRecord)
	r.Post("/charts/{chart}/ops/swap", h.SwapRecords)
	r.Get("/charts/{chart}/render", h.RenderChart)
	r.Get("/charts/{chart}/validate", h.ValidateChart)
	r.Get("/charts/{chart}/records/{id}", h.GetRecord)
	r.Post("/charts/{chart}/view", h.SwitchView)
	r.Post("/charts/{chart}/reorder", h.SetReorderMode)
	r.Post("/charts/{chart}/positions", h.SetPosition)
	r.Post("/charts/{chart}/measurements", h.ReportMeasurements)

	// Exports (render-to-file and download).
	r.Post("/charts/{chart}/export", eh.Export)
	r.Get("/exports/{filename}", eh.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
