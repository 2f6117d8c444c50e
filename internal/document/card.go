package document

import (
	"github.com/spf13/cast"
)

// ElementKind discriminates the two card element variants.
type ElementKind int

const (
	// ElementLiteral is a bare string rendered as static text.
	ElementLiteral ElementKind = iota
	// ElementNode is a tagged element with optional class, style, content
	// and children.
	ElementNode
)

// CardElement is one entry of a card template. A template is a sequence of
// elements; node elements nest through Children. Content and literal text
// are substitution targets: $identifier tokens are replaced per record at
// render time.
type CardElement struct {
	Kind     ElementKind
	Text     string // literal text, ElementLiteral only
	Tag      string
	Class    string
	Style    string
	Content  string
	Children []CardElement
}

// Literal returns a literal text element.
func Literal(text string) CardElement {
	return CardElement{Kind: ElementLiteral, Text: text}
}

// parseCardElements converts the decoded card sequence into elements.
// Each item is either a bare string (literal) or a single-key mapping
// tag -> string | object. Items of any other shape are skipped; the card
// template is read permissively like the rest of the configuration block.
func parseCardElements(raw []any) []CardElement {
	out := make([]CardElement, 0, len(raw))
	for _, item := range raw {
		if el, ok := parseCardElement(item); ok {
			out = append(out, el)
		}
	}
	return out
}

func parseCardElement(item any) (CardElement, bool) {
	switch t := item.(type) {
	case string:
		return Literal(t), true
	case map[string]any:
		if len(t) != 1 {
			return CardElement{}, false
		}
		for tag, body := range t {
			return parseNodeElement(tag, body)
		}
	}
	return CardElement{}, false
}

// parseNodeElement builds a node element from the value of a tag key.
// A scalar value is shorthand for {content: value}; a mapping value reads
// the class, style, content and children keys and ignores the rest.
func parseNodeElement(tag string, body any) (CardElement, bool) {
	el := CardElement{Kind: ElementNode, Tag: tag}
	switch b := body.(type) {
	case map[string]any:
		el.Class = cast.ToString(b["class"])
		el.Style = cast.ToString(b["style"])
		el.Content = cast.ToString(b["content"])
		if kids, ok := b["children"].([]any); ok {
			el.Children = parseCardElements(kids)
		}
	case nil:
		// bare "- div:" with no body renders an empty element
	default:
		s, err := cast.ToStringE(b)
		if err != nil {
			return CardElement{}, false
		}
		el.Content = s
	}
	return el, true
}

// plain converts the element back into the generic shape used when the
// front matter is regenerated as JSON or TOML. The YAML path builds nodes
// directly to control key order.
func (e CardElement) plain() any {
	if e.Kind == ElementLiteral {
		return e.Text
	}
	if e.Class == "" && e.Style == "" && len(e.Children) == 0 {
		return map[string]any{e.Tag: e.Content}
	}
	body := map[string]any{}
	if e.Class != "" {
		body["class"] = e.Class
	}
	if e.Style != "" {
		body["style"] = e.Style
	}
	if e.Content != "" {
		body["content"] = e.Content
	}
	if len(e.Children) > 0 {
		kids := make([]any, len(e.Children))
		for i, c := range e.Children {
			kids[i] = c.plain()
		}
		body["children"] = kids
	}
	return map[string]any{e.Tag: body}
}
