package document

import "fmt"

// IndexOf returns the list index of the first record whose canonical id
// matches key, or -1.
func (d *Document) IndexOf(key string) int {
	for i, rec := range d.Records {
		if rec.Key() == key {
			return i
		}
	}
	return -1
}

// ByKey maps canonical ids to list indices, keeping the first occurrence
// when ids collide.
func (d *Document) ByKey() map[string]int {
	out := make(map[string]int, len(d.Records))
	for i, rec := range d.Records {
		if _, seen := out[rec.Key()]; !seen {
			out[rec.Key()] = i
		}
	}
	return out
}

// MoveSibling shifts the record one step among the records that share its
// parent, in list order. delta is -1 for up and +1 for down. The return
// value reports whether anything moved; a record already at the first or
// last sibling slot stays put without error.
func (d *Document) MoveSibling(key string, delta int) (bool, error) {
	idx := d.IndexOf(key)
	if idx < 0 {
		return false, fmt.Errorf("document: record %q not found", key)
	}

	parent, hasParent := d.Records[idx].ParentKey()
	siblings := make([]int, 0, len(d.Records))
	pos := -1
	for i, rec := range d.Records {
		p, ok := rec.ParentKey()
		if ok != hasParent || p != parent {
			continue
		}
		if i == idx {
			pos = len(siblings)
		}
		siblings = append(siblings, i)
	}

	target := pos + delta
	if target < 0 || target >= len(siblings) {
		return false, nil
	}
	j := siblings[target]
	d.Records[idx], d.Records[j] = d.Records[j], d.Records[idx]
	return true, nil
}

// Swap exchanges the list positions of two records. Swapping a record with
// itself is a no-op; the operation is symmetric in its arguments.
func (d *Document) Swap(aKey, bKey string) error {
	a := d.IndexOf(aKey)
	if a < 0 {
		return fmt.Errorf("document: record %q not found", aKey)
	}
	b := d.IndexOf(bKey)
	if b < 0 {
		return fmt.Errorf("document: record %q not found", bKey)
	}
	d.Records[a], d.Records[b] = d.Records[b], d.Records[a]
	return nil
}
