package document

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sampleText = `---
options:
  nodeWidth: 300
  theme: dark
schema:
  name: string | required
  title: string
card:
  - div:
      class: title
      content: $name
  - $title
---
- id: 1
  name: Ada
- id: 2
  parentId: 1
  name: Grace
  title: VP Engineering
`

func TestParseSplitsConfigurationAndData(t *testing.T) {
	doc, err := Parse(sampleText)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got, want := doc.Format, FormatYAML; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
	if got, want := doc.Options.Float(OptNodeWidth), 300.0; got != want {
		t.Errorf("nodeWidth = %v, want %v", got, want)
	}
	if got, want := doc.Options.String(OptTheme), "dark"; got != want {
		t.Errorf("theme = %q, want %q", got, want)
	}

	name, ok := doc.Schema["name"]
	if !ok {
		t.Fatal("schema is missing the name field")
	}
	if !name.Required || name.Type != FieldString {
		t.Errorf("name spec = %+v, want required string", name)
	}
	if title := doc.Schema["title"]; title.Required {
		t.Errorf("title spec = %+v, want optional", title)
	}

	if got, want := len(doc.Card), 2; got != want {
		t.Fatalf("len(Card) = %d, want %d", got, want)
	}
	if doc.Card[0].Kind != ElementNode || doc.Card[0].Tag != "div" || doc.Card[0].Class != "title" {
		t.Errorf("Card[0] = %+v, want div.title node", doc.Card[0])
	}
	if doc.Card[1].Kind != ElementLiteral || doc.Card[1].Text != "$title" {
		t.Errorf("Card[1] = %+v, want literal $title", doc.Card[1])
	}

	if got, want := len(doc.Records), 2; got != want {
		t.Fatalf("len(Records) = %d, want %d", got, want)
	}
	if got, want := doc.Records[0].Key(), "1"; got != want {
		t.Errorf("Records[0].Key() = %q, want %q", got, want)
	}
	if !doc.Records[0].IsRoot() {
		t.Error("Records[0].IsRoot() = false, want true")
	}
	parent, ok := doc.Records[1].ParentKey()
	if !ok || parent != "1" {
		t.Errorf("Records[1].ParentKey() = %q, %v, want \"1\", true", parent, ok)
	}
	if got, want := doc.Records[1].Name(), "Grace"; got != want {
		t.Errorf("Records[1].Name() = %q, want %q", got, want)
	}
}

func TestParseWithoutConfigurationBlock(t *testing.T) {
	doc, err := Parse("- id: 1\n  name: Solo\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Options) != 0 || len(doc.Schema) != 0 || doc.Card != nil {
		t.Error("plain data text should carry no configuration")
	}
	if got, want := len(doc.Records), 1; got != want {
		t.Fatalf("len(Records) = %d, want %d", got, want)
	}
	if got, want := doc.Options.Float(OptNodeWidth), 250.0; got != want {
		t.Errorf("default nodeWidth = %v, want %v", got, want)
	}
}

func TestParseFrontmatterFormats(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		format string
	}{
		{
			name:   "json",
			text:   "---\n{\n  \"options\": {\"nodeWidth\": 280}\n}\n---\n- id: 1\n",
			format: FormatJSON,
		},
		{
			name:   "toml",
			text:   "---\n[options]\nnodeWidth = 280\n---\n- id: 1\n",
			format: FormatTOML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got, want := doc.Format, tt.format; got != want {
				t.Errorf("Format = %q, want %q", got, want)
			}
			if got, want := doc.Options.Float(OptNodeWidth), 280.0; got != want {
				t.Errorf("nodeWidth = %v, want %v", got, want)
			}

			out, err := doc.Generate()
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			again, err := Parse(out)
			if err != nil {
				t.Fatalf("Parse(generated) error = %v", err)
			}
			if got, want := again.Format, tt.format; got != want {
				t.Errorf("regenerated format = %q, want %q", got, want)
			}
		})
	}
}

func TestParseBrokenConfigurationDegrades(t *testing.T) {
	text := "---\njust a words run-on that no format accepts\n---\n- id: 1\n"
	doc, err := Parse(text)
	if doc.ConfigErr == nil {
		t.Fatal("ConfigErr = nil, want parse failure")
	}
	if doc.DataText != text {
		t.Error("degraded document should read the whole text as data")
	}
	// The whole text is not a record sequence either, so the data block
	// reports its own error on top of the configuration diagnostic.
	if err == nil {
		t.Fatal("Parse() error = nil, want data block failure")
	}
}

func TestParseDataNotSequence(t *testing.T) {
	_, err := Parse("id: 1\nname: Ada\n")
	if !errors.Is(err, ErrNotSequence) {
		t.Fatalf("Parse() error = %v, want ErrNotSequence", err)
	}
}

func TestParseNormalizesScalars(t *testing.T) {
	doc, err := Parse("- id: 7\n  level: 2.0\n  rate: 1.5\n  active: true\n  note: null\n  name: Ada\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	rec := doc.Records[0]
	if got, want := rec.ID, any(int64(7)); got != want {
		t.Errorf("ID = %#v, want %#v", got, want)
	}
	if got, want := rec.Fields["level"], any(int64(2)); got != want {
		t.Errorf("level = %#v, want %#v", got, want)
	}
	if got, want := rec.Fields["rate"], any(1.5); got != want {
		t.Errorf("rate = %#v, want %#v", got, want)
	}
	if got, want := rec.Fields["active"], any(true); got != want {
		t.Errorf("active = %#v, want %#v", got, want)
	}
	if v, ok := rec.Fields["note"]; !ok || v != nil {
		t.Errorf("note = %#v, %v, want nil, true", v, ok)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	doc, err := Parse(sampleText)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	first, err := doc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	again, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse(generated) error = %v", err)
	}
	second, err := again.Generate()
	if err != nil {
		t.Fatalf("Generate() second pass error = %v", err)
	}

	if first != second {
		t.Errorf("generated text is not stable:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
	if !reflect.DeepEqual(doc.Records, again.Records) {
		t.Errorf("records changed across round trip:\n%#v\n%#v", doc.Records, again.Records)
	}
	if !reflect.DeepEqual(doc.Schema, again.Schema) {
		t.Errorf("schema changed across round trip: %#v vs %#v", doc.Schema, again.Schema)
	}
	if !reflect.DeepEqual(doc.Options, again.Options) {
		t.Errorf("options changed across round trip: %#v vs %#v", doc.Options, again.Options)
	}
}

func TestGenerateKeyOrder(t *testing.T) {
	doc, err := Parse("- zeta: 1\n  name: Ada\n  id: 9\n  alpha: x\n  parentId: 3\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out, err := doc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "- id: 9\n  parentId: 3\n  name: Ada\n  alpha: x\n  zeta: 1\n"
	if out != want {
		t.Errorf("Generate() = %q, want %q", out, want)
	}
}

func TestGenerateTrailingBreaks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "none", text: "- id: 1", want: "- id: 1"},
		{name: "single", text: "- id: 1\n", want: "- id: 1\n"},
		{name: "double", text: "- id: 1\n\n", want: "- id: 1\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			out, err := doc.Generate()
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if out != tt.want {
				t.Errorf("Generate() = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestDataBlockMayContainDelimiter(t *testing.T) {
	text := "---\noptions:\n  theme: dark\n---\n- id: 1\n  name: Ada\n  bio: |-\n    line\n    ---\n    more\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	bio, _ := doc.Records[0].Field("bio")
	if got, ok := bio.(string); !ok || !strings.Contains(got, "---") {
		t.Errorf("bio = %#v, want multi-line string keeping the delimiter", bio)
	}
}

func TestMoveSibling(t *testing.T) {
	text := "- id: 1\n- id: 2\n  parentId: 1\n- id: 3\n  parentId: 2\n- id: 4\n  parentId: 1\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// 2 and 4 share parent 1; 3 sits between them in the list and must
	// not move.
	moved, err := doc.MoveSibling("2", 1)
	if err != nil {
		t.Fatalf("MoveSibling() error = %v", err)
	}
	if !moved {
		t.Fatal("MoveSibling() moved = false, want true")
	}
	gotOrder := recordOrder(doc)
	wantOrder := []string{"1", "4", "3", "2"}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Errorf("order after move = %v, want %v", gotOrder, wantOrder)
	}
}

func TestMoveSiblingBoundary(t *testing.T) {
	text := "- id: 1\n- id: 2\n  parentId: 1\n- id: 3\n  parentId: 1\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	before, err := doc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	moved, err := doc.MoveSibling("2", -1)
	if err != nil {
		t.Fatalf("MoveSibling() error = %v", err)
	}
	if moved {
		t.Error("MoveSibling() at boundary moved = true, want false")
	}

	after, err := doc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if before != after {
		t.Errorf("boundary move changed the text:\n%s\nvs\n%s", before, after)
	}
}

func TestMoveSiblingUnknownRecord(t *testing.T) {
	doc, err := Parse("- id: 1\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := doc.MoveSibling("nope", 1); err == nil {
		t.Error("MoveSibling(unknown) error = nil, want not found")
	}
}

func TestSwapIsSymmetric(t *testing.T) {
	text := "- id: 1\n- id: 2\n  parentId: 1\n  name: Ada\n- id: 3\n  parentId: 1\n  name: Grace\n"

	ab, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := ab.Swap("2", "3"); err != nil {
		t.Fatalf("Swap(2,3) error = %v", err)
	}
	abText, err := ab.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ba, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := ba.Swap("3", "2"); err != nil {
		t.Fatalf("Swap(3,2) error = %v", err)
	}
	baText, err := ba.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if abText != baText {
		t.Errorf("Swap is not symmetric:\n%s\nvs\n%s", abText, baText)
	}
	if got, want := recordOrder(ab), []string{"1", "3", "2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order after swap = %v, want %v", got, want)
	}
}

func TestParseFieldSpec(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FieldSpec
	}{
		{name: "bare type", in: "string", want: FieldSpec{Type: FieldString}},
		{name: "required", in: "number | required", want: FieldSpec{Type: FieldNumber, Required: true}},
		{name: "missing no spaces", in: "string|missing", want: FieldSpec{Type: FieldString, Missing: true}},
		{name: "both flags", in: "boolean | required | missing", want: FieldSpec{Type: FieldBoolean, Required: true, Missing: true}},
		{name: "unknown modifier ignored", in: "string | optional", want: FieldSpec{Type: FieldString}},
		{name: "unknown type retained", in: "date | required", want: FieldSpec{Type: FieldType("date"), Required: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseFieldSpec(tt.in); got != tt.want {
				t.Errorf("parseFieldSpec(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCardElementShapes(t *testing.T) {
	raw := []any{
		"plain $name",
		map[string]any{"img": "$photo"},
		map[string]any{"div": map[string]any{
			"class": "row",
			"children": []any{
				map[string]any{"span": "$title"},
			},
		}},
		map[string]any{"a": "x", "b": "y"}, // two keys, skipped
		42,                                 // not an element, skipped
	}
	got := parseCardElements(raw)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Kind != ElementLiteral {
		t.Errorf("got[0] = %+v, want literal", got[0])
	}
	if got[1].Tag != "img" || got[1].Content != "$photo" {
		t.Errorf("got[1] = %+v, want img shorthand", got[1])
	}
	if got[2].Tag != "div" || len(got[2].Children) != 1 || got[2].Children[0].Tag != "span" {
		t.Errorf("got[2] = %+v, want div with span child", got[2])
	}
}

func recordOrder(doc *Document) []string {
	out := make([]string, len(doc.Records))
	for i, rec := range doc.Records {
		out[i] = rec.Key()
	}
	return out
}
