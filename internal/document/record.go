package document

import (
	"fmt"
	"math"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Reserved record keys. They carry identity and hierarchy and are excluded
// from the Fields bag.
const (
	KeyID       = "id"
	KeyParentID = "parentId"
	KeyName     = "name"
)

// Record is one entry of the data block. ID and ParentID keep the scalar
// the author wrote (records may mix numeric and string ids); identity
// comparisons go through Key and ParentKey, which compare the canonical
// string form. Every other key, including name, lives in Fields so that
// schema validation and card substitution see a uniform bag.
type Record struct {
	ID       any
	ParentID any // nil for a root record
	Fields   map[string]any
}

// Key returns the canonical string form of the record id. Records whose
// ids differ only in scalar type (1 vs "1") collide on purpose.
func (r Record) Key() string {
	return cast.ToString(r.ID)
}

// ParentKey returns the canonical string form of the parent id and whether
// the record has one.
func (r Record) ParentKey() (string, bool) {
	if r.ParentID == nil {
		return "", false
	}
	return cast.ToString(r.ParentID), true
}

// IsRoot reports whether the record has no parent reference.
func (r Record) IsRoot() bool {
	return r.ParentID == nil
}

// Name returns the record's display name, empty when absent.
func (r Record) Name() string {
	v, ok := r.Fields[KeyName]
	if !ok {
		return ""
	}
	return stringifyScalar(v)
}

// Field resolves a key against the record, letting templates and the
// validator address id and parentId alongside the arbitrary fields.
func (r Record) Field(key string) (any, bool) {
	switch key {
	case KeyID:
		if r.ID == nil {
			return nil, false
		}
		return r.ID, true
	case KeyParentID:
		if r.ParentID == nil {
			return nil, false
		}
		return r.ParentID, true
	}
	v, ok := r.Fields[key]
	return v, ok
}

// decodeRecords parses the data block as a YAML sequence of mappings.
// An empty block yields no records. A block that decodes to anything other
// than a sequence of mappings is a structural error; unlike a broken
// configuration block there is no degraded reading of broken data.
func decodeRecords(data string) ([]Record, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("document: parse data block: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, ErrNotSequence
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("document: record %d is not a mapping: %w", i+1, ErrNotSequence)
		}
		rec := Record{Fields: map[string]any{}}
		for k, v := range m {
			switch k {
			case KeyID:
				rec.ID = normalizeValue(v)
			case KeyParentID:
				rec.ParentID = normalizeValue(v)
			default:
				rec.Fields[k] = normalizeValue(v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// normalizeValue maps decoded values onto the supported scalar set:
// string, bool, int64, float64 and nil. Integral floats collapse to int64
// so that numbers survive a JSON round trip unchanged. Values outside the
// set (nested mappings, sequences, timestamps) are retained opaquely; they
// round-trip through regeneration but fail type checks and substitute as
// empty text.
func normalizeValue(v any) any {
	nv, ok := normalizeScalar(v)
	if !ok {
		return v
	}
	return nv
}

func normalizeScalar(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return t, true
	case bool:
		return t, true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return collapseFloat(float64(t)), true
	case float64:
		return collapseFloat(t), true
	}
	return nil, false
}

// collapseFloat turns an integral float into an int64 when it fits without
// loss, which keeps 1.0 and 1 indistinguishable across formats.
func collapseFloat(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// stringifyScalar renders a field value for card substitution. Absent,
// null and out-of-set values substitute as empty text.
func stringifyScalar(v any) string {
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
