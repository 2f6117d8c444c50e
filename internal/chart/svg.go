package chart

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	svgSizeRE = regexp.MustCompile(`<svg width="[^"]*" height="[^"]*"`)
	svgOpenRE = regexp.MustCompile(`(?s)<svg[^>]*>`)
)

const gridPatternID = "chart-grid"

// normalizeSVG replaces graphviz's fixed point dimensions with relative
// ones so the chart scales to its container; the viewBox keeps the real
// geometry.
func normalizeSVG(svg []byte) []byte {
	return svgSizeRE.ReplaceAll(svg, []byte(`<svg width="100%" height="100%"`))
}

// injectBackground inserts a dot-grid pattern behind the chart, themed to
// the document. Injection is idempotent: an SVG that already carries the
// pattern passes through unchanged.
func injectBackground(svg []byte, pal palette) []byte {
	if strings.Contains(string(svg), gridPatternID) {
		return svg
	}
	loc := svgOpenRE.FindIndex(svg)
	if loc == nil {
		return svg
	}

	defs := fmt.Sprintf(
		`<defs><pattern id=%q width="16" height="16" patternUnits="userSpaceOnUse">`+
			`<rect width="16" height="16" fill=%q/>`+
			`<circle cx="2" cy="2" r="1" fill=%q/>`+
			`</pattern></defs>`+
			`<rect width="100%%" height="100%%" fill="url(#%s)"/>`,
		gridPatternID, pal.Background, pal.Grid, gridPatternID,
	)

	var b strings.Builder
	b.Grow(len(svg) + len(defs))
	b.Write(svg[:loc[1]])
	b.WriteString(defs)
	b.Write(svg[loc[1]:])
	return []byte(b.String())
}
