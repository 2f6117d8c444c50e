// Package engine keeps a chart document's text and its rendered form in
// sync, in both directions. External text edits run the parse, validate
// and render pipeline; structural operations mutate the record list and
// regenerate the text deterministically. The two directions meet at the
// buffer, where a two-state guard keeps the engine's own rewrites from
// re-entering the pipeline as user edits.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/starford/stemma/internal/apperr"
	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/chart"
	"github.com/starford/stemma/internal/document"
	"github.com/starford/stemma/internal/heightsync"
	"github.com/starford/stemma/internal/models"
	"github.com/starford/stemma/internal/validate"
)

// Renderer draws a validated document. chart.Adapter is the production
// implementation.
type Renderer interface {
	SVG(ctx context.Context, in chart.RenderInput) ([]byte, error)
}

// Update is one published engine state. SVG always holds the most recent
// successful render; when Valid is false it is the previous one, kept on
// screen while the document is broken.
type Update struct {
	Seq         int64
	Text        string
	Valid       bool
	Result      validate.Result
	SVG         []byte
	RenderErr   error
	View        models.ViewMode
	ReorderMode bool
	Heights     map[string]float64
	Positions   map[string]models.Position
}

// Engine is the document synchronization engine.
type Engine struct {
	log      *slog.Logger
	buf      Buffer
	renderer Renderer
	cards    *card.Renderer
	heights  *heightsync.Service
	guard    Guard

	mu              sync.Mutex
	doc             *document.Document
	result          validate.Result
	view            models.ViewMode
	reorder         bool
	positions       map[string]models.Position
	heightsOverride map[string]float64
	lastHeights     map[string]float64
	svg             []byte
	renderErr       error
	seq             int64
	subs            []updateSub
	nextSubID       int
	cancelBuf       func()
	cancelHeights   func()
}

type updateSub struct {
	id int
	fn func(Update)
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRenderer installs the chart renderer. Without one the engine still
// parses and validates but publishes no SVG.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithCards installs the card renderer used for content overrides.
func WithCards(cards *card.Renderer) Option {
	return func(e *Engine) { e.cards = cards }
}

func WithHeightSync(s *heightsync.Service) Option {
	return func(e *Engine) { e.heights = s }
}

func WithView(view models.ViewMode) Option {
	return func(e *Engine) { e.view = view }
}

func New(buf Buffer, opts ...Option) *Engine {
	e := &Engine{
		log:       slog.Default(),
		buf:       buf,
		view:      models.ViewTree,
		positions: map[string]models.Position{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cards == nil {
		e.cards = &card.Renderer{}
	}
	if e.heights == nil {
		e.heights = heightsync.New(&heightsync.Estimator{Cards: e.cards})
	}
	e.cancelBuf = e.buf.OnChange(e.onBufferChange)
	e.cancelHeights = e.heights.Observe(e.onHeights)
	return e
}

// Close detaches the engine from its buffer and height service.
func (e *Engine) Close() {
	if e.cancelBuf != nil {
		e.cancelBuf()
	}
	if e.cancelHeights != nil {
		e.cancelHeights()
	}
	e.heights.Close()
}

// Subscribe registers a callback for published updates and returns its
// cancel function. Callbacks run outside the engine lock.
func (e *Engine) Subscribe(fn func(Update)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	e.subs = append(e.subs, updateSub{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// LoadDocument replaces the whole buffer and runs the pipeline once. The
// returned result lists every issue found; the error is non-nil only when
// the data block is structurally broken.
func (e *Engine) LoadDocument(ctx context.Context, text string) (validate.Result, error) {
	e.mu.Lock()
	if e.guard.Enter() {
		e.buf.ReplaceAll(text)
		e.guard.Exit()
	}
	upd, err := e.refreshLocked(ctx)
	res := e.result
	e.mu.Unlock()

	e.notify(upd)
	return res, err
}

// Document returns the current buffer text.
func (e *Engine) Document() string {
	return e.buf.Text()
}

// Validate parses and validates the current buffer text without touching
// engine state.
func (e *Engine) Validate() validate.Result {
	doc, err := document.Parse(e.buf.Text())
	if err != nil {
		return structuralResult(doc, err)
	}
	return validate.Document(doc)
}

// Snapshot returns the current state without publishing anything.
func (e *Engine) Snapshot() Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.snapshotLocked()
}

// MoveSibling moves the record one slot among its siblings. Moving past
// the first or last sibling returns apperr.ErrBoundary and leaves the
// document untouched.
func (e *Engine) MoveSibling(ctx context.Context, id string, dir models.Direction) error {
	upd, err := e.moveSibling(ctx, id, dir)
	e.notify(upd)
	return err
}

func (e *Engine) moveSibling(ctx context.Context, id string, dir models.Direction) (*Update, error) {
	delta, err := deltaFor(dir)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, res, err := e.reparseLocked()
	if err != nil {
		return nil, err
	}
	moved, err := doc.MoveSibling(id, delta)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", id, apperr.ErrRecordNotFound)
	}
	if !moved {
		return nil, fmt.Errorf("record %q cannot move %s: %w", id, dir, apperr.ErrBoundary)
	}

	e.log.Info("record moved", "id", id, "direction", string(dir))
	return e.commitLocked(ctx, doc, res)
}

// SwapRecords exchanges the list positions of two records and their saved
// drag positions. Swapping a record with itself is a no-op.
func (e *Engine) SwapRecords(ctx context.Context, a, b string) error {
	upd, err := e.swapRecords(ctx, a, b)
	e.notify(upd)
	return err
}

func (e *Engine) swapRecords(ctx context.Context, a, b string) (*Update, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, res, err := e.reparseLocked()
	if err != nil {
		return nil, err
	}
	for _, id := range []string{a, b} {
		if doc.IndexOf(id) < 0 {
			return nil, fmt.Errorf("record %q: %w", id, apperr.ErrRecordNotFound)
		}
	}
	if a == b {
		return nil, nil
	}
	if err := doc.Swap(a, b); err != nil {
		return nil, fmt.Errorf("swap: %w", apperr.ErrRecordNotFound)
	}

	pa, oka := e.positions[a]
	pb, okb := e.positions[b]
	delete(e.positions, a)
	delete(e.positions, b)
	if oka {
		e.positions[b] = pa
	}
	if okb {
		e.positions[a] = pb
	}

	e.log.Info("records swapped", "a", a, "b", b)
	return e.commitLocked(ctx, doc, res)
}

// SwitchView changes between the tree and graph layouts and re-renders.
func (e *Engine) SwitchView(ctx context.Context, view models.ViewMode) error {
	if !view.Valid() {
		return fmt.Errorf("engine: unknown view mode %q", view)
	}

	e.mu.Lock()
	e.view = view
	if e.doc != nil && e.result.Valid() {
		e.renderLocked(ctx)
	}
	upd := e.updateLocked()
	e.mu.Unlock()

	e.notify(upd)
	return nil
}

// EnableReorderMode toggles whether drag gestures count as structural
// edits. The flag travels with every update; interpretation is the
// client's.
func (e *Engine) EnableReorderMode(enabled bool) {
	e.mu.Lock()
	e.reorder = enabled
	upd := e.updateLocked()
	e.mu.Unlock()
	e.notify(upd)
}

// SetContentOverride installs or clears (nil) the card override and
// re-renders; the renderer priority chain picks it up on this and every
// later render.
func (e *Engine) SetContentOverride(ctx context.Context, fn card.Override) {
	e.cards.SetOverride(fn)

	e.mu.Lock()
	e.heightsOverride = nil
	if e.doc != nil && e.result.Valid() {
		e.renderLocked(ctx)
	}
	upd := e.updateLocked()
	e.mu.Unlock()

	e.notify(upd)
}

// SetPosition stores a dragged node position. In graph view the next
// render pins the node there.
func (e *Engine) SetPosition(ctx context.Context, id string, pos models.Position) error {
	e.mu.Lock()
	if e.doc != nil && e.doc.IndexOf(id) < 0 {
		e.mu.Unlock()
		return fmt.Errorf("record %q: %w", id, apperr.ErrRecordNotFound)
	}
	e.positions[id] = pos
	if e.view == models.ViewGraph && e.doc != nil && e.result.Valid() {
		e.renderLocked(ctx)
	}
	upd := e.updateLocked()
	e.mu.Unlock()

	e.notify(upd)
	return nil
}

// SeedPositions preloads saved positions, typically from the position
// cache at startup. No render or update is published.
func (e *Engine) SeedPositions(positions map[string]models.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, pos := range positions {
		e.positions[id] = pos
	}
}

// ReportMeasurements feeds client-measured card heights into the debounced
// height sync. The resulting render arrives as a later update.
func (e *Engine) ReportMeasurements(measured map[string]float64) {
	e.mu.Lock()
	doc := e.doc
	valid := e.result.Valid()
	e.mu.Unlock()
	if doc == nil || !valid {
		return
	}
	e.heights.ScheduleMeasured(doc, measured)
}

// Record returns the record with the given id from the current document,
// serving click resolution.
func (e *Engine) Record(id string) (document.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return document.Record{}, apperr.ErrInvalidDocument
	}
	idx := e.doc.IndexOf(id)
	if idx < 0 {
		return document.Record{}, fmt.Errorf("record %q: %w", id, apperr.ErrRecordNotFound)
	}
	return e.doc.Records[idx], nil
}

// onBufferChange is the buffer's change callback. Self-inflicted writes
// are recognized by the guard and dropped; everything else is a user edit
// and runs the pipeline.
func (e *Engine) onBufferChange(string) {
	if e.guard.State() == StateProgrammaticUpdate {
		return
	}
	e.mu.Lock()
	upd, _ := e.refreshLocked(context.Background())
	e.mu.Unlock()
	e.notify(upd)
}

// onHeights receives debounced height changes and re-renders with them.
func (e *Engine) onHeights(heights map[string]float64) {
	e.mu.Lock()
	if e.doc == nil || !e.result.Valid() {
		e.mu.Unlock()
		return
	}
	e.heightsOverride = heights
	e.renderLocked(context.Background())
	upd := e.updateLocked()
	e.mu.Unlock()
	e.notify(upd)
}

// refreshLocked runs text to model to render against the current buffer.
func (e *Engine) refreshLocked(ctx context.Context) (*Update, error) {
	text := e.buf.Text()
	doc, parseErr := document.Parse(text)
	e.doc = doc
	e.heightsOverride = nil

	if parseErr != nil {
		e.result = structuralResult(doc, parseErr)
		e.log.Warn("document rejected", "error", parseErr)
		return e.updateLocked(), fmt.Errorf("%w: %v", apperr.ErrInvalidDocument, parseErr)
	}

	e.result = validate.Document(doc)
	if !e.result.Valid() {
		e.log.Info("document invalid", "errors", len(e.result.Errors()), "warnings", len(e.result.Warnings()))
		return e.updateLocked(), nil
	}

	e.renderLocked(ctx)
	return e.updateLocked(), nil
}

// reparseLocked reads the buffer back into a fresh document for a
// structural operation, making sure the operation works on canonical
// state even if the engine's cached copy is stale.
func (e *Engine) reparseLocked() (*document.Document, validate.Result, error) {
	doc, err := document.Parse(e.buf.Text())
	if err != nil {
		return nil, validate.Result{}, fmt.Errorf("%w: %v", apperr.ErrInvalidDocument, err)
	}
	res := validate.Document(doc)
	if !res.Valid() {
		return nil, res, fmt.Errorf("%w: %s", apperr.ErrInvalidDocument, res.Summary())
	}
	return doc, res, nil
}

// commitLocked writes a mutated document back: regenerate the text,
// replace the buffer under the guard, then render from the records the
// operation already holds rather than re-parsing its own output.
func (e *Engine) commitLocked(ctx context.Context, doc *document.Document, res validate.Result) (*Update, error) {
	text, err := doc.Generate()
	if err != nil {
		return nil, fmt.Errorf("engine: regenerate document: %w", err)
	}

	if e.guard.Enter() {
		e.buf.ReplaceAll(text)
		e.guard.Exit()
	}

	e.doc = doc
	e.result = res
	e.heightsOverride = nil
	e.renderLocked(ctx)
	return e.updateLocked(), nil
}

func (e *Engine) renderLocked(ctx context.Context) {
	if e.renderer == nil {
		return
	}
	heights := e.heightsOverride
	if heights == nil {
		heights = e.heights.Compute(e.doc)
	}

	svg, err := e.renderer.SVG(ctx, chart.RenderInput{
		Doc:       e.doc,
		View:      e.view,
		Heights:   heights,
		Positions: maps.Clone(e.positions),
	})
	if err != nil {
		// The document stays valid; the previous render stays current.
		e.log.Error("chart render failed", "error", err)
		e.renderErr = err
		return
	}
	e.svg = svg
	e.renderErr = nil
	e.lastHeights = heights
}

func (e *Engine) snapshotLocked() *Update {
	return &Update{
		Seq:         e.seq,
		Text:        e.buf.Text(),
		Valid:       e.doc != nil && e.result.Valid(),
		Result:      e.result,
		SVG:         e.svg,
		RenderErr:   e.renderErr,
		View:        e.view,
		ReorderMode: e.reorder,
		Heights:     maps.Clone(e.lastHeights),
		Positions:   maps.Clone(e.positions),
	}
}

func (e *Engine) updateLocked() *Update {
	e.seq++
	return e.snapshotLocked()
}

func (e *Engine) notify(upd *Update) {
	if upd == nil {
		return
	}
	e.mu.Lock()
	subs := make([]updateSub, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.fn(*upd)
	}
}

func deltaFor(dir models.Direction) (int, error) {
	switch dir {
	case models.DirectionUp:
		return -1, nil
	case models.DirectionDown:
		return 1, nil
	}
	return 0, fmt.Errorf("engine: unknown direction %q", dir)
}

// structuralResult wraps a data block failure as a validation result so
// every failure mode surfaces through one shape.
func structuralResult(doc *document.Document, parseErr error) validate.Result {
	var res validate.Result
	if doc != nil && doc.ConfigErr != nil {
		res.Issues = append(res.Issues, validate.Issue{
			Severity: validate.SeverityWarning,
			Message:  fmt.Sprintf("configuration block could not be parsed and was read as data: %v", doc.ConfigErr),
		})
	}
	res.Issues = append(res.Issues, validate.Issue{
		Severity: validate.SeverityError,
		Message:  parseErr.Error(),
	})
	return res
}
