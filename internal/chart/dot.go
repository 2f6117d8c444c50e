package chart

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/document"
	"github.com/starford/stemma/internal/models"
)

// Graphviz lengths are inches and positions are points; card geometry is
// pixels at the conventional CSS density.
const (
	pxPerInch  = 96.0
	ptPerPx    = 72.0 / 96.0
	fontFamily = "Helvetica,Arial,sans-serif"
)

type palette struct {
	Background string
	Fill       string
	Border     string
	Font       string
	Edge       string
	Grid       string
}

var palettes = map[string]palette{
	"light": {
		Background: "#ffffff",
		Fill:       "#f5f7fa",
		Border:     "#9aa5b1",
		Font:       "#1f2933",
		Edge:       "#7b8794",
		Grid:       "#e4e7eb",
	},
	"dark": {
		Background: "#1f2430",
		Fill:       "#2b3040",
		Border:     "#5c6578",
		Font:       "#e6e9f0",
		Edge:       "#8089a0",
		Grid:       "#303848",
	},
}

func themePalette(name string) palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes["light"]
}

// RenderInput is one render request. Heights carries per-record pixel
// heights from the measurement pass; Positions carries dragged positions
// that the graph view pins in place.
type RenderInput struct {
	Doc       *document.Document
	View      models.ViewMode
	Heights   map[string]float64
	Positions map[string]models.Position
}

// BuildDOT lays the document out as a DOT digraph. Tree view ranks top to
// bottom; graph view relies on force placement and pins any cached
// positions. Records keep author order, so equal documents produce equal
// DOT text.
func BuildDOT(in RenderInput, cards *card.Renderer) string {
	doc := in.Doc
	opts := doc.Options
	pal := themePalette(opts.String(document.OptTheme))

	var b bytes.Buffer
	b.WriteString("digraph chart {\n")

	fmt.Fprintf(&b, "  graph [bgcolor=%q, fontname=%q, nodesep=%.4f, ranksep=%.4f",
		"transparent",
		fontFamily,
		opts.Float(document.OptSiblingsMargin)/pxPerInch,
		opts.Float(document.OptChildrenMargin)/pxPerInch,
	)
	if in.View == models.ViewGraph {
		fmt.Fprintf(&b, ", overlap=false, sep=%q", fmt.Sprintf("+%.0f", opts.Float(document.OptNeighbourMargin)/2))
	} else {
		b.WriteString(", rankdir=TB, splines=ortho")
	}
	b.WriteString("];\n")

	fmt.Fprintf(&b, "  node [shape=box, style=%q, fixedsize=false, width=%.4f, height=%.4f, fillcolor=%q, color=%q, fontcolor=%q, fontname=%q, fontsize=%.1f, margin=%.4f];\n",
		"rounded,filled",
		opts.Float(document.OptNodeWidth)/pxPerInch,
		opts.Float(document.OptNodeHeight)/pxPerInch,
		pal.Fill,
		pal.Border,
		pal.Font,
		fontFamily,
		opts.Float(document.OptFontSize),
		opts.Float(document.OptCardPadding)/pxPerInch,
	)
	fmt.Fprintf(&b, "  edge [color=%q, arrowsize=0.7];\n", pal.Edge)

	for _, rec := range doc.Records {
		writeNode(&b, in, cards, rec)
	}

	known := map[string]bool{}
	for _, rec := range doc.Records {
		if rec.ID != nil {
			known[rec.Key()] = true
		}
	}
	for _, rec := range doc.Records {
		parent, ok := rec.ParentKey()
		if !ok || !known[parent] {
			// Dangling parents render the record as a root; the validator
			// already warned about the reference.
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s;\n", quoteDOT(parent), quoteDOT(rec.Key()))
	}

	b.WriteString("}\n")
	return b.String()
}

func writeNode(b *bytes.Buffer, in RenderInput, cards *card.Renderer, rec document.Record) {
	key := rec.Key()
	label := strings.Join(cards.Lines(in.Doc, rec), "\n")
	if label == "" {
		label = key
	}

	fmt.Fprintf(b, "  %s [label=%s", quoteDOT(key), quoteDOT(label))
	if h, ok := in.Heights[key]; ok && h > 0 {
		fmt.Fprintf(b, ", height=%.4f", h/pxPerInch)
	}
	if in.View == models.ViewGraph {
		if pos, ok := in.Positions[key]; ok {
			fmt.Fprintf(b, ", pos=%q, pin=true", fmt.Sprintf("%.2f,%.2f!", pos.X*ptPerPx, -pos.Y*ptPerPx))
		}
	}
	b.WriteString("];\n")
}

// quoteDOT renders a DOT double-quoted string. Newlines become the \n
// escape so multi-line card labels survive.
func quoteDOT(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
