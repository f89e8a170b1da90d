package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Property is a single-key attribute record, encoded on the wire as
// {"Key":"Value"}.
type Property struct {
	Key   string
	Value string
}

// P is shorthand for building a Property.
func P(key, value string) Property {
	return Property{Key: key, Value: value}
}

// MarshalJSON encodes the record as a one-entry object.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{p.Key: p.Value})
}

// Properties is an ordered sequence of property records.
type Properties []Property

// UnmarshalJSON decodes an array of objects. Objects with more than one key
// are split into one record per key (sorted), empty objects are dropped and
// non-string values keep their JSON text.
func (ps *Properties) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ps = nil
		return nil
	}

	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProperty, err)
	}

	out := make(Properties, 0, len(records))
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			out = append(out, Property{Key: k, Value: rawValue(rec[k])})
		}
	}
	*ps = out
	return nil
}

// rawValue unquotes JSON strings and keeps any other value verbatim.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// Get returns the value of key.
func (ps Properties) Get(key string) (string, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Has reports whether key is declared.
func (ps Properties) Has(key string) bool {
	_, ok := ps.Get(key)
	return ok
}

// Clone returns an independent copy.
func (ps Properties) Clone() Properties {
	if ps == nil {
		return nil
	}
	cpy := make(Properties, len(ps))
	copy(cpy, ps)
	return cpy
}

// Normalize returns a copy with duplicate keys collapsed. Each key keeps the
// position of its first occurrence and the value of its last.
func (ps Properties) Normalize() Properties {
	if ps == nil {
		return nil
	}
	out := make(Properties, 0, len(ps))
	index := make(map[string]int, len(ps))
	for _, p := range ps {
		if i, ok := index[p.Key]; ok {
			out[i].Value = p.Value
			continue
		}
		index[p.Key] = len(out)
		out = append(out, p)
	}
	return out
}

// Merge returns ps with incoming applied key-wise: matching keys are
// overwritten in place, new keys are appended in incoming order.
func (ps Properties) Merge(incoming Properties) Properties {
	out := ps.Clone()
	index := make(map[string]int, len(out)+len(incoming))
	for i, p := range out {
		index[p.Key] = i
	}
	for _, p := range incoming {
		if i, ok := index[p.Key]; ok {
			out[i].Value = p.Value
			continue
		}
		index[p.Key] = len(out)
		out = append(out, p)
	}
	return out
}

// Covers reports whether every key of other is declared in ps.
func (ps Properties) Covers(other Properties) bool {
	for _, p := range other {
		if !ps.Has(p.Key) {
			return false
		}
	}
	return true
}

// Diff returns the records of next whose value differs from, or is absent
// in, ps.
func (ps Properties) Diff(next Properties) Properties {
	var changed Properties
	for _, p := range next {
		if v, ok := ps.Get(p.Key); !ok || v != p.Value {
			changed = append(changed, p)
		}
	}
	return changed
}
