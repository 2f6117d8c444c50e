package chart

import (
	"strings"
	"testing"

	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/document"
	"github.com/starford/stemma/internal/models"
)

func parseDoc(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, err := document.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

func TestBuildDOTTreeView(t *testing.T) {
	doc := parseDoc(t, `---
options:
  nodeWidth: 192
  theme: dark
---
- id: 1
  name: Ada
- id: 2
  parentId: 1
  name: Grace
`)
	dot := BuildDOT(RenderInput{Doc: doc, View: models.ViewTree}, &card.Renderer{})

	for _, want := range []string{
		"digraph chart {",
		"rankdir=TB",
		`"1" [label="Ada"]`,
		`"2" [label="Grace"]`,
		`"1" -> "2";`,
		"width=2.0000",      // 192px at 96 dpi
		`fillcolor="#2b3040"`, // dark theme
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

func TestBuildDOTDanglingParentRendersAsRoot(t *testing.T) {
	doc := parseDoc(t, "- id: 1\n  name: Ada\n- id: 2\n  parentId: 99\n  name: Lost\n")
	dot := BuildDOT(RenderInput{Doc: doc, View: models.ViewTree}, &card.Renderer{})

	if strings.Contains(dot, "->") {
		t.Errorf("dangling parent must not produce an edge:\n%s", dot)
	}
	if !strings.Contains(dot, `"2" [label="Lost"]`) {
		t.Errorf("record with dangling parent must still render:\n%s", dot)
	}
}

func TestBuildDOTGraphViewPinsPositions(t *testing.T) {
	doc := parseDoc(t, "- id: 1\n  name: Ada\n- id: 2\n  parentId: 1\n  name: Grace\n")
	dot := BuildDOT(RenderInput{
		Doc:  doc,
		View: models.ViewGraph,
		Positions: map[string]models.Position{
			"2": {X: 96, Y: 192},
		},
	}, &card.Renderer{})

	if strings.Contains(dot, "rankdir") {
		t.Errorf("graph view must not rank:\n%s", dot)
	}
	if !strings.Contains(dot, "overlap=false") {
		t.Errorf("graph view should prevent overlap:\n%s", dot)
	}
	// 96px right, 192px down maps to 72pt, -144pt with a pin.
	if !strings.Contains(dot, `pos="72.00,-144.00!"`) {
		t.Errorf("cached position not pinned:\n%s", dot)
	}
	if !strings.Contains(dot, "pin=true") {
		t.Errorf("pinned node missing pin attribute:\n%s", dot)
	}
}

func TestBuildDOTEscapesLabels(t *testing.T) {
	doc := parseDoc(t, "- id: 1\n  name: 'He said \"hi\"'\n  title: R&D\n")
	dot := BuildDOT(RenderInput{Doc: doc, View: models.ViewTree}, &card.Renderer{})

	if !strings.Contains(dot, `\"hi\"`) {
		t.Errorf("quotes not escaped:\n%s", dot)
	}
	// Fallback card joins lines with a newline, escaped for DOT.
	if !strings.Contains(dot, `\n`) {
		t.Errorf("multi-line label not escaped:\n%s", dot)
	}
}

func TestBuildDOTHeightsApplied(t *testing.T) {
	doc := parseDoc(t, "- id: 1\n  name: Ada\n")
	dot := BuildDOT(RenderInput{
		Doc:     doc,
		View:    models.ViewTree,
		Heights: map[string]float64{"1": 240},
	}, &card.Renderer{})

	if !strings.Contains(dot, "height=2.5000") {
		t.Errorf("measured height not applied:\n%s", dot)
	}
}

func TestBuildDOTDeterministic(t *testing.T) {
	text := "- id: 1\n  name: Ada\n- id: 2\n  parentId: 1\n  name: Grace\n- id: 3\n  parentId: 1\n  name: Edsger\n"
	a := BuildDOT(RenderInput{Doc: parseDoc(t, text), View: models.ViewTree}, &card.Renderer{})
	b := BuildDOT(RenderInput{Doc: parseDoc(t, text), View: models.ViewTree}, &card.Renderer{})
	if a != b {
		t.Errorf("equal documents produced different DOT:\n%s\nvs\n%s", a, b)
	}
}

func TestNormalizeSVG(t *testing.T) {
	in := []byte(`<?xml version="1.0"?>` + "\n" + `<svg width="216pt" height="116pt" viewBox="0.00 0.00 216.00 116.00" xmlns="http://www.w3.org/2000/svg">`)
	out := string(normalizeSVG(in))
	if !strings.Contains(out, `<svg width="100%" height="100%"`) {
		t.Errorf("dimensions not normalized: %s", out)
	}
	if !strings.Contains(out, `viewBox="0.00 0.00 216.00 116.00"`) {
		t.Errorf("viewBox must survive: %s", out)
	}
}

func TestInjectBackgroundIdempotent(t *testing.T) {
	in := []byte(`<svg width="100%" height="100%" viewBox="0 0 10 10"><g></g></svg>`)
	pal := themePalette("light")

	once := injectBackground(in, pal)
	if !strings.Contains(string(once), gridPatternID) {
		t.Fatalf("pattern not injected: %s", once)
	}
	if got, want := strings.Count(string(once), "<defs>"), 1; got != want {
		t.Fatalf("defs injected %d times, want %d", got, want)
	}

	twice := injectBackground(once, pal)
	if string(twice) != string(once) {
		t.Errorf("second injection changed the SVG:\n%s\nvs\n%s", twice, once)
	}
}

func TestThemePaletteFallsBackToLight(t *testing.T) {
	if got, want := themePalette("sepia"), palettes["light"]; got != want {
		t.Errorf("themePalette(sepia) = %+v, want light palette", got)
	}
}
