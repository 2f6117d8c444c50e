package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Configuration block formats. The block between the --- delimiters is
// parsed with a failover chain in this order; the winning format is retained
// on the document so regenerated text keeps the author's choice.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// Layout option keys read by the chart adapter and the height sync service.
// Unknown keys in a document are retained but ignored.
const (
	OptNodeWidth       = "nodeWidth"
	OptNodeHeight      = "nodeHeight"
	OptSiblingsMargin  = "siblingsMargin"
	OptChildrenMargin  = "childrenMargin"
	OptNeighbourMargin = "neighbourMargin"
	OptFontSize        = "fontSize"
	OptCardPadding     = "cardPadding"
	OptMinNodeHeight   = "minNodeHeight"
	OptMaxNodeHeight   = "maxNodeHeight"
	OptTheme           = "theme"
	OptInitialZoom     = "initialZoom"
	OptMinZoom         = "minZoom"
	OptMaxZoom         = "maxZoom"
)

// optionDefaults are the process-wide fallbacks for missing option keys.
var optionDefaults = map[string]any{
	OptNodeWidth:       int64(250),
	OptNodeHeight:      int64(120),
	OptSiblingsMargin:  int64(20),
	OptChildrenMargin:  int64(60),
	OptNeighbourMargin: int64(80),
	OptFontSize:        int64(14),
	OptCardPadding:     int64(12),
	OptMinNodeHeight:   int64(60),
	OptMaxNodeHeight:   int64(400),
	OptTheme:           "light",
	OptInitialZoom:     int64(1),
	OptMinZoom:         0.25,
	OptMaxZoom:         int64(4),
}

// Options is the flat layout-option mapping from a document's front matter.
// Values are scalars (string, bool, int64 or float64).
type Options map[string]any

// Float returns the option as a float64, falling back to the process-wide
// default for the key, then to zero.
func (o Options) Float(key string) float64 {
	if v, ok := o[key]; ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	if v, ok := optionDefaults[key]; ok {
		return cast.ToFloat64(v)
	}
	return 0
}

// String returns the option as a string, falling back to the process-wide
// default for the key, then to the empty string.
func (o Options) String(key string) string {
	if v, ok := o[key]; ok {
		return cast.ToString(v)
	}
	if v, ok := optionDefaults[key]; ok {
		return cast.ToString(v)
	}
	return ""
}

// FieldType is a declared primitive type in a schema field spec.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// known reports whether the declared type is one the validator can check.
func (t FieldType) known() bool {
	return t == FieldString || t == FieldNumber || t == FieldBoolean
}

// FieldSpec is one parsed schema entry. Required and Missing are independent
// flags: Required makes absence an error, Missing documents that absence is
// expected for the field. A declared type outside the known set is retained
// verbatim and skipped by type checking.
type FieldSpec struct {
	Type     FieldType
	Required bool
	Missing  bool
}

// parseFieldSpec parses the pipe-delimited mini-grammar
// "<type> | <modifier> | <modifier>". Token 0 is the type; the literal
// tokens "required" and "missing" anywhere else set the flags. Unrecognized
// tokens (including "optional") are ignored.
func parseFieldSpec(s string) FieldSpec {
	tokens := strings.Split(s, "|")
	spec := FieldSpec{}
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if i == 0 {
			spec.Type = FieldType(tok)
			continue
		}
		switch tok {
		case "required":
			spec.Required = true
		case "missing":
			spec.Missing = true
		}
	}
	return spec
}

// String renders the field spec back into the mini-grammar in canonical form.
func (s FieldSpec) String() string {
	out := string(s.Type)
	if s.Required {
		out += " | required"
	}
	if s.Missing {
		out += " | missing"
	}
	return out
}

// Schema maps field names to their parsed specs.
type Schema map[string]FieldSpec

// frontmatterContent is the permissive shape the configuration block is
// decoded into before normalization.
type frontmatterContent struct {
	Options map[string]any `yaml:"options" json:"options" toml:"options"`
	Schema  map[string]any `yaml:"schema" json:"schema" toml:"schema"`
	Card    []any          `yaml:"card" json:"card" toml:"card"`
}

// parseFrontmatter decodes the configuration block, trying YAML, JSON and
// TOML in order. The first parser to succeed wins and its format name is
// returned. Blocks that open with a brace try JSON first; YAML accepts all
// of JSON, so without the dispatch a JSON block would be tagged yaml and
// regenerate in the wrong format. If all parsers fail, the first error is
// returned.
func parseFrontmatter(raw []byte) (*frontmatterContent, string, error) {
	parsers := []func([]byte, any) error{
		yaml.Unmarshal,
		json.Unmarshal,
		toml.Unmarshal,
	}
	parserNames := []string{
		FormatYAML,
		FormatJSON,
		FormatTOML,
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		parsers[0], parsers[1] = parsers[1], parsers[0]
		parserNames[0], parserNames[1] = parserNames[1], parserNames[0]
	}

	var firstErr error
	for i, parse := range parsers {
		var content frontmatterContent
		if err := parse(raw, &content); err == nil {
			return &content, parserNames[i], nil
		} else if firstErr == nil {
			firstErr = fmt.Errorf("document: parse front matter: %w", err)
		}
	}
	return nil, "", firstErr
}

// normalize converts the permissive decoded shape into the typed maps.
// Non-scalar option values and non-string schema specs are skipped rather
// than reported; the configuration block is read permissively.
func (c *frontmatterContent) normalize() (Options, Schema, []CardElement) {
	opts := Options{}
	for k, v := range c.Options {
		if nv, ok := normalizeScalar(v); ok {
			opts[k] = nv
		}
	}

	schema := Schema{}
	for k, v := range c.Schema {
		if s, err := cast.ToStringE(v); err == nil {
			schema[k] = parseFieldSpec(s)
		}
	}

	var card []CardElement
	if c.Card != nil {
		card = parseCardElements(c.Card)
	}
	return opts, schema, card
}
