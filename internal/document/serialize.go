package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Generate renders the document back into canonical text: configuration
// block in the detected format with sorted keys, records in author order
// with a fixed key layout, and the source's trailing line feeds restored.
// Two documents with equal models generate byte-equal text.
func (d *Document) Generate() (string, error) {
	var b strings.Builder

	if len(d.Options) > 0 || len(d.Schema) > 0 || d.Card != nil {
		front, err := d.generateFrontmatter()
		if err != nil {
			return "", err
		}
		b.WriteString(Delimiter)
		b.WriteByte('\n')
		b.WriteString(front)
		if !strings.HasSuffix(front, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(Delimiter)
		b.WriteByte('\n')
	}

	if len(d.Records) > 0 {
		data, err := encodeYAML(recordsNode(d.Records))
		if err != nil {
			return "", fmt.Errorf("document: generate data block: %w", err)
		}
		b.WriteString(data)
	}

	return applyTrailingBreaks(b.String(), d.trailingBreaks), nil
}

func (d *Document) generateFrontmatter() (string, error) {
	switch d.Format {
	case FormatJSON:
		out, err := json.MarshalIndent(d.frontmatterPlain(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("document: generate front matter: %w", err)
		}
		return string(out), nil
	case FormatTOML:
		out, err := toml.Marshal(d.frontmatterPlain())
		if err != nil {
			return "", fmt.Errorf("document: generate front matter: %w", err)
		}
		return string(out), nil
	default:
		out, err := encodeYAML(d.frontmatterNode())
		if err != nil {
			return "", fmt.Errorf("document: generate front matter: %w", err)
		}
		return out, nil
	}
}

// frontmatterPlain builds the generic front matter shape for the JSON and
// TOML marshalers, which sort mapping keys themselves.
func (d *Document) frontmatterPlain() map[string]any {
	out := map[string]any{}
	if len(d.Options) > 0 {
		out["options"] = map[string]any(d.Options)
	}
	if len(d.Schema) > 0 {
		schema := map[string]string{}
		for k, spec := range d.Schema {
			schema[k] = spec.String()
		}
		out["schema"] = schema
	}
	if d.Card != nil {
		card := make([]any, len(d.Card))
		for i, el := range d.Card {
			card[i] = el.plain()
		}
		out["card"] = card
	}
	return out
}

// frontmatterNode builds the YAML front matter with explicit nodes; the
// yaml encoder keeps mapping order as built, so sorting here is what makes
// the output canonical.
func (d *Document) frontmatterNode() *yaml.Node {
	root := mappingNode()
	if len(d.Options) > 0 {
		opts := mappingNode()
		for _, k := range sortedKeys(d.Options) {
			appendPair(opts, k, scalarNode(d.Options[k]))
		}
		appendPair(root, "options", opts)
	}
	if len(d.Schema) > 0 {
		schema := mappingNode()
		keys := make([]string, 0, len(d.Schema))
		for k := range d.Schema {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendPair(schema, k, scalarNode(d.Schema[k].String()))
		}
		appendPair(root, "schema", schema)
	}
	if d.Card != nil {
		card := &yaml.Node{Kind: yaml.SequenceNode}
		for _, el := range d.Card {
			card.Content = append(card.Content, cardElementNode(el))
		}
		appendPair(root, "card", card)
	}
	return root
}

// cardElementNode renders one card element. Node elements with only
// content keep the tag: content shorthand; fuller elements emit class,
// style, content and children in that order.
func cardElementNode(el CardElement) *yaml.Node {
	if el.Kind == ElementLiteral {
		return scalarNode(el.Text)
	}

	if el.Class == "" && el.Style == "" && len(el.Children) == 0 {
		wrap := mappingNode()
		appendPair(wrap, el.Tag, scalarNode(el.Content))
		return wrap
	}

	body := mappingNode()
	if el.Class != "" {
		appendPair(body, "class", scalarNode(el.Class))
	}
	if el.Style != "" {
		appendPair(body, "style", scalarNode(el.Style))
	}
	if el.Content != "" {
		appendPair(body, "content", scalarNode(el.Content))
	}
	if len(el.Children) > 0 {
		kids := &yaml.Node{Kind: yaml.SequenceNode}
		for _, c := range el.Children {
			kids.Content = append(kids.Content, cardElementNode(c))
		}
		appendPair(body, "children", kids)
	}

	wrap := mappingNode()
	appendPair(wrap, el.Tag, body)
	return wrap
}

// recordsNode renders the record list. Key order per record is id,
// parentId, name, then the remaining fields sorted.
func recordsNode(records []Record) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, rec := range records {
		m := mappingNode()
		if rec.ID != nil {
			appendPair(m, KeyID, scalarNode(rec.ID))
		}
		if rec.ParentID != nil {
			appendPair(m, KeyParentID, scalarNode(rec.ParentID))
		}
		if v, ok := rec.Fields[KeyName]; ok {
			appendPair(m, KeyName, scalarNode(v))
		}
		rest := make([]string, 0, len(rec.Fields))
		for k := range rec.Fields {
			if k != KeyName {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			appendPair(m, k, scalarNode(rec.Fields[k]))
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func encodeYAML(node *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, keyNode(key), value)
}

func keyNode(key string) *yaml.Node {
	n := &yaml.Node{}
	n.SetString(key)
	return n
}

// scalarNode encodes a value into a node, quoting and tagging through the
// yaml encoder's own rules so ambiguous strings stay strings.
func scalarNode(v any) *yaml.Node {
	if v == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		n.SetString(fmt.Sprint(v))
	}
	return n
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
