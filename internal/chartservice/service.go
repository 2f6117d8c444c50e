// Package chartservice hosts a sync engine per open chart and coordinates
// storage, the position cache, and rendering around it.
package chartservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/starford/stemma/internal/apperr"
	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/chart"
	"github.com/starford/stemma/internal/checksum"
	"github.com/starford/stemma/internal/document"
	"github.com/starford/stemma/internal/engine"
	"github.com/starford/stemma/internal/models"
	"github.com/starford/stemma/internal/poscache"
	"github.com/starford/stemma/internal/storage"
	"github.com/starford/stemma/internal/validate"
)

// Renderer is what the service needs from a chart renderer. chart.Adapter
// is the production implementation.
type Renderer interface {
	engine.Renderer
	PNG(ctx context.Context, in chart.RenderInput) ([]byte, error)
	DOT(in chart.RenderInput) string
	Close() error
}

// ChartDetail is the full representation of a chart.
type ChartDetail struct {
	Path      string          `json:"path"`
	Content   string          `json:"content"`
	Checksum  string          `json:"checksum"`
	Valid     bool            `json:"valid"`
	Issues    []Issue         `json:"issues"`
	View      models.ViewMode `json:"view"`
	Reorder   bool            `json:"reorder"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Issue is a serializable validation finding.
type Issue struct {
	Severity string `json:"severity"`
	Record   string `json:"record,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// ValidationReport is the result of validating a chart on demand.
type ValidationReport struct {
	Valid   bool    `json:"valid"`
	Issues  []Issue `json:"issues"`
	Summary string  `json:"summary,omitempty"`
}

// UpdateFunc receives every engine update for a hosted chart.
type UpdateFunc func(path string, upd engine.Update)

// Service coordinates storage, cache and engine operations.
type Service struct {
	store storage.Provider
	cache *poscache.DB

	// newRenderer builds the renderer for a hosted chart; swapped in tests.
	newRenderer func(cards *card.Renderer) Renderer

	mu      sync.Mutex
	engines map[string]*hosted

	subMu  sync.Mutex
	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn UpdateFunc
}

type hosted struct {
	path     string
	engine   *engine.Engine
	renderer Renderer
	cards    *card.Renderer
	cancel   func()

	// opMu serializes operation-then-persist sequences so two concurrent
	// requests cannot interleave their file and cache writes.
	opMu sync.Mutex
}

func (h *hosted) close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.engine.Close()
	if h.renderer != nil {
		_ = h.renderer.Close()
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRendererFactory replaces how renderers are built, one per hosted
// chart. Embedders and tests use it to substitute the graphviz adapter.
func WithRendererFactory(fn func(cards *card.Renderer) Renderer) ServiceOption {
	return func(s *Service) { s.newRenderer = fn }
}

// NewService creates a new chart service.
func NewService(store storage.Provider, cache *poscache.DB, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		cache:       cache,
		newRenderer: func(cards *card.Renderer) Renderer { return chart.New(cards) },
		engines:     make(map[string]*hosted),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a callback for updates from every hosted chart and
// returns its cancel function.
func (s *Service) Subscribe(fn UpdateFunc) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Service) fanout(path string, upd engine.Update) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(path, upd)
	}
}

// Close shuts down every hosted engine.
func (s *Service) Close() {
	s.mu.Lock()
	engines := s.engines
	s.engines = make(map[string]*hosted)
	s.mu.Unlock()

	for _, h := range engines {
		h.close()
	}
}

// host returns the engine for path, creating it from the stored file on
// first use. The cache supplies the saved view preference and positions.
func (s *Service) host(ctx context.Context, path string) (*hosted, error) {
	s.mu.Lock()
	if h, ok := s.engines[path]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}

	view := models.ViewTree
	if row, _ := s.cache.GetChart(path); row != nil {
		view = row.View
	}
	positions, err := s.cache.Positions(path)
	if err != nil {
		slog.Warn("position restore failed", slog.String("chart", path), slog.String("error", err.Error()))
	}

	cards := &card.Renderer{}
	renderer := s.newRenderer(cards)
	eng := engine.New(engine.NewMemoryBuffer(""),
		engine.WithRenderer(renderer),
		engine.WithCards(cards),
		engine.WithView(view),
		engine.WithLogger(slog.With(slog.String("chart", path))),
	)
	eng.SeedPositions(positions)

	h := &hosted{path: path, engine: eng, renderer: renderer, cards: cards}
	h.cancel = eng.Subscribe(func(upd engine.Update) { s.fanout(path, upd) })

	s.mu.Lock()
	if existing, ok := s.engines[path]; ok {
		// Lost the race; keep the first one.
		s.mu.Unlock()
		h.close()
		return existing, nil
	}
	s.engines[path] = h
	s.mu.Unlock()

	if _, err := eng.LoadDocument(ctx, string(data)); err != nil {
		// Structurally broken files are still hosted; the engine reports
		// the error state and recovers on the next edit.
		slog.Warn("chart loaded with structural error", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return h, nil
}

// GetChart reads a chart, hosting its engine on first access.
func (s *Service) GetChart(ctx context.Context, path string) (*ChartDetail, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.detail(path, h.engine.Snapshot()), nil
}

// CreateChart writes a new chart and hosts it.
func (s *Service) CreateChart(ctx context.Context, path string, content []byte) (*ChartDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	s.recordWrite(path, content)
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}

	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.detail(path, h.engine.Snapshot()), nil
}

// UpdateChart replaces a chart's text with optimistic concurrency. The
// engine pipeline runs on the new text; invalid documents are stored
// anyway and reported through the returned detail.
func (s *Service) UpdateChart(ctx context.Context, path string, content []byte, ifMatch string) (*ChartDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}

	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	if _, err := h.engine.LoadDocument(ctx, string(content)); err != nil {
		slog.Warn("chart updated with structural error", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return s.persist(path, h)
}

// DeleteChart removes a chart from storage and cache and tears down its
// engine.
func (s *Service) DeleteChart(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	s.Unhost(path)
	return s.cache.DeleteChart(path)
}

// ListCharts returns charts sorted by path, sliced by limit and offset.
func (s *Service) ListCharts(_ context.Context, limit, offset int) ([]models.ChartMeta, int, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	total := len(metas)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	metas = metas[offset:]
	if limit > 0 && limit < len(metas) {
		metas = metas[:limit]
	}
	if metas == nil {
		metas = []models.ChartMeta{}
	}
	return metas, total, nil
}

// MoveSibling moves a record among its siblings and persists the
// regenerated text.
func (s *Service) MoveSibling(ctx context.Context, path, id string, dir models.Direction) (*ChartDetail, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	if err := h.engine.MoveSibling(ctx, id, dir); err != nil {
		return nil, err
	}
	return s.persist(path, h)
}

// SwapRecords exchanges two records' positions and persists the
// regenerated text.
func (s *Service) SwapRecords(ctx context.Context, path, a, b string) (*ChartDetail, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	if err := h.engine.SwapRecords(ctx, a, b); err != nil {
		return nil, err
	}
	return s.persist(path, h)
}

// SwitchView changes a chart's layout mode and stores the preference.
func (s *Service) SwitchView(ctx context.Context, path string, view models.ViewMode) error {
	h, err := s.host(ctx, path)
	if err != nil {
		return err
	}
	if err := h.engine.SwitchView(ctx, view); err != nil {
		return err
	}
	if err := s.cache.SetView(path, view); err != nil {
		slog.Warn("view preference not saved", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return nil
}

// SetPosition stores a dragged node coordinate in the engine and the cache.
func (s *Service) SetPosition(ctx context.Context, path, id string, pos models.Position) error {
	h, err := s.host(ctx, path)
	if err != nil {
		return err
	}
	if err := h.engine.SetPosition(ctx, id, pos); err != nil {
		return err
	}
	if err := s.cache.SavePosition(path, id, pos); err != nil {
		slog.Warn("position not saved", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return nil
}

// EnableReorderMode toggles drag reordering for a chart.
func (s *Service) EnableReorderMode(ctx context.Context, path string, enabled bool) error {
	h, err := s.host(ctx, path)
	if err != nil {
		return err
	}
	h.engine.EnableReorderMode(enabled)
	return nil
}

// SetContentOverride installs or clears (nil) a card override for a hosted
// chart. For embedding callers; the override takes precedence over the
// document's card template on every later render.
func (s *Service) SetContentOverride(ctx context.Context, path string, fn card.Override) error {
	h, err := s.host(ctx, path)
	if err != nil {
		return err
	}
	h.engine.SetContentOverride(ctx, fn)
	return nil
}

// ReportMeasurements feeds client-measured card heights into a chart's
// height sync.
func (s *Service) ReportMeasurements(ctx context.Context, path string, measured map[string]float64) error {
	h, err := s.host(ctx, path)
	if err != nil {
		return err
	}
	h.engine.ReportMeasurements(measured)
	return nil
}

// Validate parses and validates a chart without touching engine state.
func (s *Service) Validate(ctx context.Context, path string) (ValidationReport, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return ValidationReport{}, err
	}
	res := h.engine.Validate()
	return ValidationReport{
		Valid:   res.Valid(),
		Issues:  toIssues(res),
		Summary: res.Summary(),
	}, nil
}

// GetRecord resolves a clicked node id to its record fields.
func (s *Service) GetRecord(ctx context.Context, path, id string) (map[string]any, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}
	rec, err := h.engine.Record(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		out[k] = v
	}
	out[document.KeyID] = rec.ID
	if rec.ParentID != nil {
		out[document.KeyParentID] = rec.ParentID
	}
	return out, nil
}

// RenderSVG returns the most recent successful render of a chart.
func (s *Service) RenderSVG(ctx context.Context, path string) ([]byte, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, err
	}
	snap := h.engine.Snapshot()
	if len(snap.SVG) == 0 {
		if snap.RenderErr != nil {
			return nil, snap.RenderErr
		}
		return nil, fmt.Errorf("chart %s has never rendered: %w", path, apperr.ErrInvalidDocument)
	}
	return snap.SVG, nil
}

// RenderPNG rasterizes the chart's current state on demand.
func (s *Service) RenderPNG(ctx context.Context, path string) ([]byte, error) {
	h, in, err := s.renderInput(ctx, path)
	if err != nil {
		return nil, err
	}
	return h.renderer.PNG(ctx, in)
}

// RenderDOT returns the generated layout source for the chart's current
// state.
func (s *Service) RenderDOT(ctx context.Context, path string) (string, error) {
	h, in, err := s.renderInput(ctx, path)
	if err != nil {
		return "", err
	}
	return h.renderer.DOT(in), nil
}

// renderInput rebuilds a render input from the engine's published state.
func (s *Service) renderInput(ctx context.Context, path string) (*hosted, chart.RenderInput, error) {
	h, err := s.host(ctx, path)
	if err != nil {
		return nil, chart.RenderInput{}, err
	}
	snap := h.engine.Snapshot()
	if !snap.Valid {
		return nil, chart.RenderInput{}, fmt.Errorf("chart %s: %w", path, apperr.ErrInvalidDocument)
	}
	doc, err := document.Parse(snap.Text)
	if err != nil {
		return nil, chart.RenderInput{}, fmt.Errorf("chart %s: %w", path, apperr.ErrInvalidDocument)
	}
	return h, chart.RenderInput{
		Doc:       doc,
		View:      snap.View,
		Heights:   snap.Heights,
		Positions: snap.Positions,
	}, nil
}

// Reload re-reads a chart from disk into its hosted engine after an
// external edit. Returns false when the chart is not hosted; the next
// GetChart will read the fresh file anyway.
func (s *Service) Reload(ctx context.Context, path string) bool {
	s.mu.Lock()
	h, ok := s.engines[path]
	s.mu.Unlock()
	if !ok {
		return false
	}

	data, err := s.store.Read(path)
	if err != nil {
		slog.Warn("reload read failed", slog.String("chart", path), slog.String("error", err.Error()))
		return true
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()
	if _, err := h.engine.LoadDocument(ctx, string(data)); err != nil {
		slog.Warn("external edit has structural error", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return true
}

// Unhost tears down the engine for a chart that no longer exists.
func (s *Service) Unhost(path string) {
	s.mu.Lock()
	h, ok := s.engines[path]
	if ok {
		delete(s.engines, path)
	}
	s.mu.Unlock()
	if ok {
		h.close()
	}
}

// persist writes the engine's buffer back to storage and refreshes the
// cache, recording the checksum first so the watcher drops the write echo.
// The engine's position map replaces the cached one, which both persists
// swap side effects and prunes records that no longer exist.
func (s *Service) persist(path string, h *hosted) (*ChartDetail, error) {
	data := []byte(h.engine.Document())
	s.recordWrite(path, data)
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}

	snap := h.engine.Snapshot()
	if err := s.cache.ReplacePositions(path, snap.Positions); err != nil {
		slog.Warn("positions not saved", slog.String("chart", path), slog.String("error", err.Error()))
	}
	return s.detail(path, snap), nil
}

// recordWrite stores the checksum of content about to be written so the
// watcher recognizes the change as our own.
func (s *Service) recordWrite(path string, content []byte) {
	err := s.cache.UpsertChart(poscache.ChartRow{
		Path:      path,
		Checksum:  checksum.Sum(content),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("cache refresh failed", slog.String("chart", path), slog.String("error", err.Error()))
	}
}

func (s *Service) detail(path string, snap engine.Update) *ChartDetail {
	return &ChartDetail{
		Path:      path,
		Content:   snap.Text,
		Checksum:  checksum.Sum([]byte(snap.Text)),
		Valid:     snap.Valid,
		Issues:    toIssues(snap.Result),
		View:      snap.View,
		Reorder:   snap.ReorderMode,
		UpdatedAt: time.Now().UTC(),
	}
}

func toIssues(res validate.Result) []Issue {
	out := make([]Issue, 0, len(res.Issues))
	for _, is := range res.Issues {
		out = append(out, Issue{
			Severity: is.Severity.String(),
			Record:   is.RecordKey,
			Field:    is.Field,
			Message:  is.Message,
		})
	}
	return out
}
