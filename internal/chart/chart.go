// Package chart turns a validated document into a rendered org chart. The
// layout itself is delegated to graphviz: tree view runs the hierarchical
// dot engine, graph view runs force-directed neato with dragged positions
// pinned. The adapter owns the document-to-DOT translation and the SVG
// post-processing; it never validates, callers gate on validation first.
package chart

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-graphviz"

	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/models"
)

// Adapter renders documents through an embedded graphviz engine. The
// engine is created lazily on the first render, reused for every render
// after that and torn down by Close. Renders are serialized; the engine is
// not safe for concurrent use.
type Adapter struct {
	cards *card.Renderer

	mu sync.Mutex
	g  *graphviz.Graphviz
}

func New(cards *card.Renderer) *Adapter {
	if cards == nil {
		cards = &card.Renderer{}
	}
	return &Adapter{cards: cards}
}

// Cards exposes the renderer so callers can install a content override.
func (a *Adapter) Cards() *card.Renderer {
	return a.cards
}

// DOT returns the generated layout source without running the engine.
func (a *Adapter) DOT(in RenderInput) string {
	return BuildDOT(in, a.cards)
}

// SVG renders the chart as a scalable SVG fragment. The output is
// normalized to fill its container and carries the theme's background
// grid; node titles hold record ids so clients can map clicks back to
// records.
func (a *Adapter) SVG(ctx context.Context, in RenderInput) ([]byte, error) {
	out, err := a.render(ctx, in, graphviz.SVG)
	if err != nil {
		return nil, err
	}
	out = normalizeSVG(out)
	out = injectBackground(out, themePalette(in.Doc.Options.String("theme")))
	return out, nil
}

// PNG renders the chart as a raster image for exports.
func (a *Adapter) PNG(ctx context.Context, in RenderInput) ([]byte, error) {
	return a.render(ctx, in, graphviz.PNG)
}

func (a *Adapter) render(ctx context.Context, in RenderInput, format graphviz.Format) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.g == nil {
		g, err := graphviz.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("chart: init graphviz: %w", err)
		}
		a.g = g
	}

	switch in.View {
	case models.ViewGraph:
		a.g.SetLayout(graphviz.NEATO)
	default:
		a.g.SetLayout(graphviz.DOT)
	}

	graph, err := graphviz.ParseBytes([]byte(BuildDOT(in, a.cards)))
	if err != nil {
		return nil, fmt.Errorf("chart: parse layout: %w", err)
	}
	defer func() { _ = graph.Close() }()

	var buf bytes.Buffer
	if err := a.g.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("chart: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Close tears down the engine. The adapter stays usable; the next render
// creates a fresh engine.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.g == nil {
		return nil
	}
	err := a.g.Close()
	a.g = nil
	return err
}
