package planning

import (
	"bytes"
	"encoding/json"
)

// OrderedParams is a parameter map that preserves insertion order.
// Parameter order is authoritative throughout the engine: the catalog declares
// it, the parser normalizes to it, and the resolver binds positionally from it.
type OrderedParams struct {
	keys   []string
	values map[string]interface{}
}

// NewOrderedParams creates an empty ordered parameter map.
func NewOrderedParams() *OrderedParams {
	return &OrderedParams{
		values: make(map[string]interface{}),
	}
}

// Set stores a value under key. An existing key keeps its original position.
func (p *OrderedParams) Set(key string, value interface{}) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it is present.
func (p *OrderedParams) Get(key string) (interface{}, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *OrderedParams) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (p *OrderedParams) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of entries.
func (p *OrderedParams) Len() int {
	return len(p.keys)
}

// Values returns the values in insertion order.
func (p *OrderedParams) Values() []interface{} {
	out := make([]interface{}, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, p.values[k])
	}
	return out
}

// Map returns a plain map copy of the entries. Key order is lost.
func (p *OrderedParams) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.keys))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the entries preserving order.
func (p *OrderedParams) Clone() *OrderedParams {
	if p == nil {
		return nil
	}
	out := NewOrderedParams()
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// MarshalJSON encodes the parameters as a JSON object preserving key order.
func (p *OrderedParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
