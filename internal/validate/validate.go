// Package validate checks a parsed chart document against its declared
// schema and the structural rules every chart shares. Validation never
// stops at the first problem; callers get the full list in one pass.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/stemma/internal/document"
)

// Severity ranks an issue. Errors block rendering, warnings do not.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Issue is one validation finding. RecordKey is the canonical id of the
// offending record when the issue is record-scoped, Field the field name
// when it is field-scoped.
type Issue struct {
	Severity  Severity
	RecordKey string
	Field     string
	Message   string
}

// Result accumulates the issues of one validation pass in a stable order:
// records in list order, fields alphabetically within a record.
type Result struct {
	Issues []Issue
}

// Valid reports whether the document can be rendered. Warnings alone do
// not invalidate it.
func (r Result) Valid() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns the error-severity issues.
func (r Result) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues.
func (r Result) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == sev {
			out = append(out, is)
		}
	}
	return out
}

// Summary joins every issue message into one line, errors first.
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.Issues))
	for _, is := range r.Errors() {
		parts = append(parts, is.Message)
	}
	for _, is := range r.Warnings() {
		parts = append(parts, "warning: "+is.Message)
	}
	return strings.Join(parts, "; ")
}

func (r *Result) add(sev Severity, key, field, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity:  sev,
		RecordKey: key,
		Field:     field,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Document validates a parsed document. Schema violations, missing ids and
// duplicate ids are errors. A parent reference that resolves to no record
// is only a warning: the record still renders, as a root.
func Document(doc *document.Document) Result {
	var res Result

	if doc.ConfigErr != nil {
		res.add(SeverityWarning, "", "", "configuration block could not be parsed and was read as data: %v", doc.ConfigErr)
	}

	known := map[string]int{}
	for i, rec := range doc.Records {
		if rec.ID == nil {
			continue
		}
		if _, ok := known[rec.Key()]; !ok {
			known[rec.Key()] = i
		}
	}

	fields := make([]string, 0, len(doc.Schema))
	for name := range doc.Schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	seen := map[string]bool{}
	for i, rec := range doc.Records {
		label := recordLabel(rec, i)

		if rec.ID == nil {
			res.add(SeverityError, "", "", "%s: missing id", label)
		} else if seen[rec.Key()] {
			res.add(SeverityError, rec.Key(), "", "%s: duplicate id %q", label, rec.Key())
		}
		seen[rec.Key()] = true

		for _, name := range fields {
			spec := doc.Schema[name]
			v, ok := rec.Field(name)
			if !ok || v == nil {
				if spec.Required {
					res.add(SeverityError, rec.Key(), name, "%s: missing required field %q", label, name)
				}
				continue
			}
			if ok, got := typeMatches(spec.Type, v); !ok {
				res.add(SeverityError, rec.Key(), name, "%s: field %q expects %s, got %s", label, name, spec.Type, got)
			}
		}

		if parent, ok := rec.ParentKey(); ok {
			if _, exists := known[parent]; !exists {
				res.add(SeverityWarning, rec.Key(), "", "%s: parent %q not found, record renders as a root", label, parent)
			}
		}
	}

	return res
}

// recordLabel names a record by id, falling back to the 1-based list
// position when the id itself is missing.
func recordLabel(rec document.Record, index int) string {
	if rec.ID != nil {
		return fmt.Sprintf("record %s", rec.Key())
	}
	return fmt.Sprintf("record #%d", index+1)
}

// typeMatches checks a value against a declared type. Declared types
// outside the known set pass everything, matching the permissive reading
// of the configuration block.
func typeMatches(t document.FieldType, v any) (bool, string) {
	got := valueTypeName(v)
	switch t {
	case document.FieldString:
		return got == "string", got
	case document.FieldNumber:
		return got == "number", got
	case document.FieldBoolean:
		return got == "boolean", got
	}
	return true, got
}

func valueTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64, float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	}
	return "unknown"
}
