package heightsync

import (
	"github.com/starford/stemma/internal/card"
	"github.com/starford/stemma/internal/document"
)

// lineSpacing approximates rendered line height as a multiple of the font
// size, matching normal CSS line spacing.
const lineSpacing = 1.5

// Estimator measures card content from its text projection: one
// spacing-scaled line per rendered card line. Padding is not included;
// the sync service adds it once, on top of the global maximum. It is the
// measurer used when no client-side measurement is available.
type Estimator struct {
	Cards *card.Renderer
}

func (e *Estimator) Measure(doc *document.Document, rec document.Record) float64 {
	lines := len(e.renderer().Lines(doc, rec))
	if lines == 0 {
		lines = 1
	}
	return float64(lines) * doc.Options.Float(document.OptFontSize) * lineSpacing
}

func (e *Estimator) renderer() *card.Renderer {
	if e.Cards != nil {
		return e.Cards
	}
	return &card.Renderer{}
}
