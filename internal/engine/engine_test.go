package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/stemma/internal/apperr"
	"github.com/starford/stemma/internal/chart"
	"github.com/starford/stemma/internal/document"
	"github.com/starford/stemma/internal/heightsync"
	"github.com/starford/stemma/internal/models"
)

const minimalText = `---
schema:
  id: number | required
  name: string | required
---
- id: 1
  name: CEO
- id: 2
  parentId: 1
  name: CTO
`

// fakeRenderer records render calls without a real layout engine.
type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	last  chart.RenderInput
	fail  error
}

func (f *fakeRenderer) SVG(_ context.Context, in chart.RenderInput) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.calls++
	f.last = in
	return []byte(fmt.Sprintf("<svg render=%d nodes=%d/>", f.calls, len(in.Doc.Records))), nil
}

func (f *fakeRenderer) stats() (int, chart.RenderInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.last
}

func newTestEngine(t *testing.T) (*Engine, *MemoryBuffer, *fakeRenderer) {
	t.Helper()
	buf := NewMemoryBuffer("")
	r := &fakeRenderer{}
	e := New(buf, WithRenderer(r))
	t.Cleanup(e.Close)
	return e, buf, r
}

func TestLoadValidDocumentRenders(t *testing.T) {
	e, _, r := newTestEngine(t)

	res, err := e.LoadDocument(context.Background(), minimalText)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if !res.Valid() {
		t.Fatalf("result not valid: %v", res.Issues)
	}

	snap := e.Snapshot()
	if !snap.Valid {
		t.Error("snapshot not valid")
	}
	if len(snap.SVG) == 0 {
		t.Error("no SVG rendered")
	}
	calls, last := r.stats()
	if calls != 1 {
		t.Errorf("renderer called %d times, want 1", calls)
	}
	if len(last.Doc.Records) != 2 {
		t.Errorf("rendered %d records, want 2", len(last.Doc.Records))
	}
}

func TestInvalidDocumentKeepsPreviousRender(t *testing.T) {
	e, _, r := newTestEngine(t)

	if _, err := e.LoadDocument(context.Background(), minimalText); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	good := e.Snapshot().SVG

	res, err := e.LoadDocument(context.Background(), "---\nschema:\n  name: string | required\n---\n- id: 1\n")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if res.Valid() {
		t.Fatal("document with missing required field must not validate")
	}

	snap := e.Snapshot()
	if snap.Valid {
		t.Error("snapshot claims valid")
	}
	if string(snap.SVG) != string(good) {
		t.Error("previous render was replaced")
	}
	if calls, _ := r.stats(); calls != 1 {
		t.Errorf("renderer called %d times, want only the first load", calls)
	}
}

func TestStructuralErrorReported(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.LoadDocument(context.Background(), "key: value\n")
	if !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Fatalf("LoadDocument() error = %v, want ErrInvalidDocument", err)
	}
	if e.Snapshot().Valid {
		t.Error("snapshot claims valid after structural error")
	}
}

func TestExternalEditRunsPipeline(t *testing.T) {
	e, buf, r := newTestEngine(t)

	var mu sync.Mutex
	var updates []Update
	cancel := e.Subscribe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	defer cancel()

	buf.ReplaceAll(minimalText)

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("published %d updates, want 1", len(updates))
	}
	if !updates[0].Valid {
		t.Errorf("update not valid: %v", updates[0].Result.Issues)
	}
	if calls, _ := r.stats(); calls != 1 {
		t.Errorf("renderer called %d times, want 1", calls)
	}
}

func TestMoveSiblingRegeneratesWithoutReentry(t *testing.T) {
	e, buf, r := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n  parentId: 1\n- id: 3\n  parentId: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	var mu sync.Mutex
	var updates int
	cancel := e.Subscribe(func(Update) {
		mu.Lock()
		updates++
		mu.Unlock()
	})
	defer cancel()

	if err := e.MoveSibling(context.Background(), "2", models.DirectionDown); err != nil {
		t.Fatalf("MoveSibling() error = %v", err)
	}

	// One programmatic rewrite, one render, one update: the buffer change
	// the engine caused must not re-run the pipeline.
	mu.Lock()
	if updates != 1 {
		t.Errorf("published %d updates, want 1", updates)
	}
	mu.Unlock()
	if calls, _ := r.stats(); calls != 2 {
		t.Errorf("renderer called %d times, want 2 (load + move)", calls)
	}

	doc, err := document.Parse(buf.Text())
	if err != nil {
		t.Fatalf("Parse(buffer) error = %v", err)
	}
	order := make([]string, len(doc.Records))
	for i, rec := range doc.Records {
		order[i] = rec.Key()
	}
	if strings.Join(order, ",") != "1,3,2" {
		t.Errorf("buffer order = %v, want 1,3,2", order)
	}
	if e.guard.State() != StateIdle {
		t.Errorf("guard left in %v", e.guard.State())
	}
}

func TestMoveSiblingBoundary(t *testing.T) {
	e, buf, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n  parentId: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	before := buf.Text()

	var mu sync.Mutex
	var updates int
	cancel := e.Subscribe(func(Update) {
		mu.Lock()
		updates++
		mu.Unlock()
	})
	defer cancel()

	err := e.MoveSibling(context.Background(), "2", models.DirectionUp)
	if !errors.Is(err, apperr.ErrBoundary) {
		t.Fatalf("MoveSibling() error = %v, want ErrBoundary", err)
	}
	if buf.Text() != before {
		t.Error("boundary move changed the buffer")
	}
	mu.Lock()
	if updates != 0 {
		t.Errorf("boundary move published %d updates, want 0", updates)
	}
	mu.Unlock()
}

func TestMoveUnknownRecord(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	err := e.MoveSibling(context.Background(), "404", models.DirectionDown)
	if !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("MoveSibling() error = %v, want ErrRecordNotFound", err)
	}
}

func TestMoveOnInvalidDocument(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "---\nschema:\n  name: string | required\n---\n- id: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	err := e.MoveSibling(context.Background(), "1", models.DirectionDown)
	if !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Fatalf("MoveSibling() error = %v, want ErrInvalidDocument", err)
	}
}

func TestSwapTwiceRestoresOrder(t *testing.T) {
	e, buf, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n- id: 3\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	original := buf.Text()

	if err := e.SwapRecords(context.Background(), "1", "3"); err != nil {
		t.Fatalf("first swap error = %v", err)
	}
	if buf.Text() == original {
		t.Fatal("first swap left the buffer unchanged")
	}
	if err := e.SwapRecords(context.Background(), "1", "3"); err != nil {
		t.Fatalf("second swap error = %v", err)
	}
	if buf.Text() != original {
		t.Errorf("double swap did not restore the text:\n%s\nvs\n%s", buf.Text(), original)
	}
}

func TestSwapCarriesSavedPositions(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if err := e.SetPosition(context.Background(), "1", models.Position{X: 10, Y: 20}); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}

	if err := e.SwapRecords(context.Background(), "1", "2"); err != nil {
		t.Fatalf("SwapRecords() error = %v", err)
	}

	snap := e.Snapshot()
	if got := snap.Positions["2"]; got != (models.Position{X: 10, Y: 20}) {
		t.Errorf("position did not travel with the swap: %v", snap.Positions)
	}
	if _, ok := snap.Positions["1"]; ok {
		t.Errorf("stale position left behind: %v", snap.Positions)
	}
}

func TestSwapSelfIsNoop(t *testing.T) {
	e, buf, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	before := buf.Text()
	if err := e.SwapRecords(context.Background(), "1", "1"); err != nil {
		t.Fatalf("SwapRecords(self) error = %v", err)
	}
	if buf.Text() != before {
		t.Error("self swap changed the buffer")
	}
}

func TestSwitchView(t *testing.T) {
	e, _, r := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	if err := e.SwitchView(context.Background(), models.ViewGraph); err != nil {
		t.Fatalf("SwitchView() error = %v", err)
	}
	if got := e.Snapshot().View; got != models.ViewGraph {
		t.Errorf("view = %v, want graph", got)
	}
	if _, last := r.stats(); last.View != models.ViewGraph {
		t.Errorf("renderer saw view %v, want graph", last.View)
	}

	if err := e.SwitchView(context.Background(), "spiral"); err == nil {
		t.Error("SwitchView(spiral) error = nil, want failure")
	}
}

func TestRenderFailureKeepsDocumentValid(t *testing.T) {
	e, _, r := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	good := e.Snapshot().SVG

	r.mu.Lock()
	r.fail = errors.New("engine exploded")
	r.mu.Unlock()

	if _, err := e.LoadDocument(context.Background(), "- id: 1\n- id: 2\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	snap := e.Snapshot()
	if !snap.Valid {
		t.Error("render failure must not invalidate the document")
	}
	if snap.RenderErr == nil {
		t.Error("render error not surfaced")
	}
	if string(snap.SVG) != string(good) {
		t.Error("failed render replaced the previous SVG")
	}
}

func TestSetContentOverrideRerenders(t *testing.T) {
	e, _, r := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), "- id: 1\n  name: Ada\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	e.SetContentOverride(context.Background(), func(rec document.Record) string {
		return "<b>" + rec.Name() + "</b>"
	})
	if calls, _ := r.stats(); calls != 2 {
		t.Errorf("renderer called %d times, want 2", calls)
	}

	rec, err := e.Record("1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := e.cards.HTML(nil, rec); got != "<b>Ada</b>" {
		t.Errorf("override not active: %q", got)
	}
}

func TestReportMeasurementsRerendersDebounced(t *testing.T) {
	buf := NewMemoryBuffer("")
	r := &fakeRenderer{}
	hs := heightsync.New(&heightsync.Estimator{}, heightsync.WithDelay(5*time.Millisecond))
	e := New(buf, WithRenderer(r), WithHeightSync(hs))
	t.Cleanup(e.Close)

	if _, err := e.LoadDocument(context.Background(), "---\noptions:\n  cardPadding: 0\n---\n- id: 1\n"); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	got := make(chan Update, 4)
	cancel := e.Subscribe(func(u Update) { got <- u })
	defer cancel()

	e.ReportMeasurements(map[string]float64{"1": 300})

	select {
	case u := <-got:
		if u.Heights["1"] != 300 {
			t.Errorf("heights = %v, want measured 300", u.Heights)
		}
	case <-time.After(time.Second):
		t.Fatal("measurement update never arrived")
	}
}

func TestValidateIsPure(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.LoadDocument(context.Background(), minimalText); err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	before := e.Snapshot().Seq

	if res := e.Validate(); !res.Valid() {
		t.Errorf("Validate() = %v, want valid", res.Issues)
	}
	if got := e.Snapshot().Seq; got != before {
		t.Errorf("Validate() advanced seq from %d to %d", before, got)
	}
}

func TestGuardStateMachine(t *testing.T) {
	var g Guard
	if g.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", g.State())
	}
	if !g.Enter() {
		t.Fatal("Enter() from idle = false")
	}
	if g.State() != StateProgrammaticUpdate {
		t.Fatalf("state after Enter = %v", g.State())
	}
	if g.Enter() {
		t.Fatal("re-Enter() = true, want false")
	}
	g.Exit()
	if g.State() != StateIdle {
		t.Fatalf("state after Exit = %v", g.State())
	}
}

func TestMemoryBufferNotifies(t *testing.T) {
	buf := NewMemoryBuffer("a")
	var got []string
	cancel := buf.OnChange(func(text string) { got = append(got, text) })

	buf.ReplaceAll("b")
	if buf.Text() != "b" {
		t.Errorf("Text() = %q, want b", buf.Text())
	}
	cancel()
	buf.ReplaceAll("c")

	if len(got) != 1 || got[0] != "b" {
		t.Errorf("notifications = %v, want [b]", got)
	}
}
