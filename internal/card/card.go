// Package card renders record cards from the template declared in a chart
// document. Templates are sequences of literal and tagged elements whose
// text carries $identifier tokens; rendering substitutes every token
// against one record. The package produces two projections of the same
// card: plain text lines for layout and measurement, and HTML for clients
// that draw the card themselves.
package card

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"github.com/starford/stemma/internal/document"
)

// tokenRE matches one substitution token: an identifier fenced by dollar
// signs on both sides. A lone dollar sign is literal text; there is no
// escape for writing a literal token.
var tokenRE = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*\$`)

// Substitute replaces every $identifier$ token in text with the record's
// value for that field. Substitution is total: fields that are absent,
// null or not scalar substitute as empty text, never as the token itself.
func Substitute(text string, rec document.Record) string {
	return tokenRE.ReplaceAllStringFunc(text, func(tok string) string {
		v, ok := rec.Field(tok[1 : len(tok)-1])
		if !ok {
			return ""
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int64, float64:
		return cast.ToString(t)
	}
	return ""
}

// Override renders a record's card as markup, replacing template
// resolution entirely while installed.
type Override func(rec document.Record) string

// Renderer resolves which card applies to a record and renders it.
// Resolution order: the installed override function, then the document's
// own template, then the renderer's configured default, then a built-in
// card listing the record's fields. The order is re-evaluated on every
// call because the override can be installed or cleared at any time after
// load.
type Renderer struct {
	mu sync.Mutex
	// Default applies to documents that declare no card template.
	Default  []document.CardElement
	override Override
}

// SetOverride installs or clears (nil) the override function.
func (r *Renderer) SetOverride(fn Override) {
	r.mu.Lock()
	r.override = fn
	r.mu.Unlock()
}

func (r *Renderer) overrideFn() Override {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override
}

func (r *Renderer) template(doc *document.Document) []document.CardElement {
	if doc != nil && doc.Card != nil {
		return doc.Card
	}
	return r.Default
}

// Lines renders the card as plain text lines, one per element with
// non-empty substituted content. The height sync service measures cards
// through this projection. Override markup is flattened to its text.
func (r *Renderer) Lines(doc *document.Document, rec document.Record) []string {
	if fn := r.overrideFn(); fn != nil {
		return markupLines(fn(rec))
	}
	tpl := r.template(doc)
	if tpl == nil {
		return fallbackLines(rec)
	}
	var out []string
	appendLines(&out, tpl, rec)
	return out
}

func appendLines(out *[]string, els []document.CardElement, rec document.Record) {
	for _, el := range els {
		switch el.Kind {
		case document.ElementLiteral:
			if line := Substitute(el.Text, rec); line != "" {
				*out = append(*out, line)
			}
		case document.ElementNode:
			if line := Substitute(el.Content, rec); line != "" {
				*out = append(*out, line)
			}
			appendLines(out, el.Children, rec)
		}
	}
}

// HTML renders the card as an HTML fragment. Tagged elements become
// elements of the same tag with their class and style carried over; img
// elements read their substituted content as the source URL. Override
// markup is returned verbatim; the override owns its own escaping.
func (r *Renderer) HTML(doc *document.Document, rec document.Record) string {
	if fn := r.overrideFn(); fn != nil {
		return fn(rec)
	}
	tpl := r.template(doc)
	if tpl == nil {
		return fallbackHTML(rec)
	}
	var b strings.Builder
	writeHTML(&b, tpl, rec)
	return b.String()
}

func writeHTML(b *strings.Builder, els []document.CardElement, rec document.Record) {
	for _, el := range els {
		switch el.Kind {
		case document.ElementLiteral:
			b.WriteString(html.EscapeString(Substitute(el.Text, rec)))
		case document.ElementNode:
			writeElement(b, el, rec)
		}
	}
}

func writeElement(b *strings.Builder, el document.CardElement, rec document.Record) {
	content := Substitute(el.Content, rec)

	b.WriteByte('<')
	b.WriteString(el.Tag)
	if el.Class != "" {
		b.WriteString(` class="`)
		b.WriteString(html.EscapeString(el.Class))
		b.WriteByte('"')
	}
	if el.Style != "" {
		b.WriteString(` style="`)
		b.WriteString(html.EscapeString(Substitute(el.Style, rec)))
		b.WriteByte('"')
	}
	if el.Tag == "img" {
		b.WriteString(` src="`)
		b.WriteString(html.EscapeString(content))
		b.WriteString(`">`)
		return
	}
	b.WriteByte('>')
	b.WriteString(html.EscapeString(content))
	writeHTML(b, el.Children, rec)
	b.WriteString("</")
	b.WriteString(el.Tag)
	b.WriteByte('>')
}

// fallbackLines lists what the record holds: the name first, then each
// remaining scalar field as "key: value". A record with nothing to show
// falls back to its id.
func fallbackLines(rec document.Record) []string {
	var out []string
	if name := rec.Name(); name != "" {
		out = append(out, name)
	}
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		if k == document.KeyName {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := stringify(rec.Fields[k]); v != "" {
			out = append(out, k+": "+v)
		}
	}
	if len(out) == 0 && rec.ID != nil {
		out = append(out, rec.Key())
	}
	return out
}

var tagRE = regexp.MustCompile(`<[^>]*>`)

// markupLines reduces override markup to text lines: tags become line
// boundaries, entities are decoded, blank lines drop out.
func markupLines(markup string) []string {
	text := tagRE.ReplaceAllString(markup, "\n")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(html.UnescapeString(line)); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// fallbackHTML mirrors fallbackLines as plain divs. The lines hold field
// values verbatim, so they are escaped but never run through substitution
// again; a value that happens to contain a dollar token stays literal.
func fallbackHTML(rec document.Record) string {
	var b strings.Builder
	for i, line := range fallbackLines(rec) {
		class := "card-field"
		if i == 0 && rec.Name() != "" {
			class = "card-name"
		}
		b.WriteString(`<div class="`)
		b.WriteString(class)
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(line))
		b.WriteString("</div>")
	}
	return b.String()
}
