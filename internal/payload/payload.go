// Package payload provides the ordered field mapping carried by sync
// operations. The engine never interprets field values; it only reads the
// identifier, timestamp and tombstone fields it is configured to look at.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Payload is an ordered field name to value mapping. Key order survives JSON
// round trips. The zero value is not usable; use New or Parse.
type Payload struct {
	fields *orderedmap.OrderedMap[string, any]
}

// New returns an empty payload.
func New() *Payload {
	return &Payload{fields: orderedmap.New[string, any]()}
}

// FromMap builds a payload from an unordered map, with keys sorted.
func FromMap(m map[string]any) *Payload {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := New()
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Parse decodes a JSON object.
func Parse(data []byte) (*Payload, error) {
	p := New()
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseArray decodes a JSON array whose elements are all objects.
func ParseArray(data []byte) ([]*Payload, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}

	out := make([]*Payload, 0, len(raw))
	for i, elem := range raw {
		p, err := Parse(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	if p == nil || p.fields == nil {
		return 0
	}
	return p.fields.Len()
}

// Get returns the value of a field.
func (p *Payload) Get(key string) (any, bool) {
	if p == nil || p.fields == nil {
		return nil, false
	}
	return p.fields.Get(key)
}

// Has reports whether the field is present, even with a null value.
func (p *Payload) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set adds or replaces a field. New fields are appended at the end.
func (p *Payload) Set(key string, value any) {
	if p.fields == nil {
		p.fields = orderedmap.New[string, any]()
	}
	p.fields.Set(key, value)
}

// Delete removes a field.
func (p *Payload) Delete(key string) {
	if p == nil || p.fields == nil {
		return
	}
	p.fields.Delete(key)
}

// Keys returns the field names in order.
func (p *Payload) Keys() []string {
	keys := make([]string, 0, p.Len())
	p.Range(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Range calls fn for every field in order until fn returns false.
func (p *Payload) Range(fn func(key string, value any) bool) {
	if p == nil || p.fields == nil {
		return
	}
	for pair := p.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a shallow copy. Nested values are shared.
func (p *Payload) Clone() *Payload {
	c := New()
	p.Range(func(k string, v any) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// Map returns the fields as an unordered map.
func (p *Payload) Map() map[string]any {
	m := make(map[string]any, p.Len())
	p.Range(func(k string, v any) bool {
		m[k] = v
		return true
	})
	return m
}

// Translate renames fields through fieldMap and drops every field the map
// does not name. Output keeps the input order.
func (p *Payload) Translate(fieldMap map[string]string) *Payload {
	out := New()
	p.Range(func(k string, v any) bool {
		if target, ok := fieldMap[k]; ok {
			out.Set(target, v)
		}
		return true
	})
	return out
}

// MarshalJSON implements json.Marshaler. A nil payload encodes as null.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	if p.fields == nil {
		return []byte("{}"), nil
	}
	return p.fields.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON objects are accepted.
func (p *Payload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	fields := orderedmap.New[string, any]()
	if err := fields.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("failed to decode object: %w", err)
	}
	p.fields = fields
	return nil
}
