// Package document parses and regenerates org chart documents. A document
// is a text with an optional configuration block fenced by --- delimiter
// lines (layout options, a field schema and a card template) followed by a
// YAML data block listing the chart records. Parsing is lenient about the
// configuration block and strict about the data block; regeneration emits
// canonical text so that equal models produce equal bytes.
package document

import (
	"errors"
	"strings"
)

// Delimiter fences the configuration block.
const Delimiter = "---"

// ErrNotSequence reports a data block that decoded to something other than
// a sequence of mappings.
var ErrNotSequence = errors.New("document: data block is not a sequence of records")

// Document is the parsed model of a chart text.
type Document struct {
	// Options, Schema and Card come from the configuration block. Card is
	// nil when the block declares no card template, which lets renderers
	// fall through to their own default template.
	Options Options
	Schema  Schema
	Card    []CardElement

	// Records is the parsed data block in author order.
	Records []Record

	// DataText is the raw data block, kept verbatim for diagnostics.
	DataText string

	// Format is the configuration block format detected at parse time and
	// reused on regeneration. Documents without a configuration block
	// regenerate as YAML.
	Format string

	// ConfigErr carries the parse failure of a broken configuration block.
	// A broken block never fails Parse; the whole text is read as data and
	// the error is surfaced here for diagnostics.
	ConfigErr error

	// trailingBreaks is the number of line feeds the source ended with,
	// restored on regeneration.
	trailingBreaks int
}

// Parse reads a chart text into a Document. The returned error is non-nil
// only for a structurally broken data block; in that case the document
// still carries the configuration so callers can report the failure
// without losing layout context.
func Parse(text string) (*Document, error) {
	doc := &Document{
		Options:        Options{},
		Schema:         Schema{},
		Format:         FormatYAML,
		trailingBreaks: countTrailingBreaks(text),
	}

	config, data, found := splitSource(text)
	doc.DataText = data

	if found && strings.TrimSpace(config) != "" {
		content, format, err := parseFrontmatter([]byte(config))
		if err != nil {
			// Degrade: keep the configuration error and read the whole
			// text as data, which reports the follow-up failure in terms
			// of what the author actually wrote.
			doc.ConfigErr = err
			doc.DataText = text
		} else {
			doc.Options, doc.Schema, doc.Card = content.normalize()
			doc.Format = format
		}
	}

	records, err := decodeRecords(doc.DataText)
	if err != nil {
		return doc, err
	}
	doc.Records = records
	return doc, nil
}

// splitSource separates the configuration block from the data block. The
// text carries a configuration block only when its first non-blank line is
// the delimiter; the block ends at the next delimiter line. Everything
// after the closing delimiter is data, rejoined verbatim because the data
// block may itself legally contain delimiter lines.
func splitSource(text string) (config, data string, found bool) {
	lines := strings.Split(text, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) || !isDelimiterLine(lines[start]) {
		return "", text, false
	}

	for end := start + 1; end < len(lines); end++ {
		if !isDelimiterLine(lines[end]) {
			continue
		}
		config = strings.Join(lines[start+1:end], "\n")
		data = strings.Join(lines[end+1:], "\n")
		return config, data, true
	}
	return "", text, false
}

// isDelimiterLine matches a delimiter at the start of the line. Indented
// occurrences do not count, so block scalars in the configuration cannot
// close the fence early.
func isDelimiterLine(line string) bool {
	return strings.TrimRight(line, " \t\r") == Delimiter
}

// countTrailingBreaks counts the line feeds a text ends with.
func countTrailingBreaks(text string) int {
	n := 0
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case '\n':
			n++
		case '\r':
		default:
			return n
		}
	}
	return n
}

// applyTrailingBreaks trims or pads line feeds so the generated text ends
// with exactly n of them.
func applyTrailingBreaks(text string, n int) string {
	text = strings.TrimRight(text, "\r\n")
	if text == "" && n == 0 {
		return ""
	}
	return text + strings.Repeat("\n", n)
}
