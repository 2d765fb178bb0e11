/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: value.go
Description: Normalized value model for the Akaylee Reader. Every format adapter
emits values of this closed shape: null, boolean, integer, float, string, bytes,
sequence and ordered mapping. Values are immutable once built and are always
constructed bottom-up from finished children, so they can never form cycles.
*/

package value

import (
	"bytes"
	"math"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindSequence
	KindMapping
)

// Kinds lists every variant in canonical order
var Kinds = []Kind{KindNull, KindBool, KindInt, KindFloat, KindString, KindBytes, KindSequence, KindMapping}

// String returns the schema name of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Pair is one key/value entry of a mapping
type Pair struct {
	Key   string
	Value Value
}

// Value is a dynamically typed, recursive normalized value.
// The zero Value is Null.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	raw   []byte
	items []Value
	pairs []Pair
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes wraps a copy of raw bytes
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, raw: cp}
}

// Sequence builds an ordered list value
func Sequence(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, items: cp}
}

// Mapping builds an ordered mapping. A repeated key keeps its first
// position and takes the last value.
func Mapping(pairs ...Pair) Value {
	b := NewMappingBuilder(len(pairs))
	for _, p := range pairs {
		b.Set(p.Key, p.Value)
	}
	return b.Build()
}

// Kind returns the variant of the value
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload. Integers are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the bytes payload
func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }

// Items returns the elements of a sequence. The slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Pairs returns the entries of a mapping in order. The slice must not be modified.
func (v Value) Pairs() []Pair { return v.pairs }

// Len returns the number of elements or entries
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.pairs)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.raw)
	}
	return 0
}

// Get looks up a mapping entry by key
func (v Value) Get(key string) (Value, bool) {
	for _, p := range v.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Keys returns the mapping keys in order
func (v Value) Keys() []string {
	keys := make([]string, len(v.pairs))
	for i, p := range v.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Equal reports deep equality. NaN floats compare equal to each other.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindSequence:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.pairs) != len(b.pairs) {
			return false
		}
		for i := range a.pairs {
			if a.pairs[i].Key != b.pairs[i].Key || !Equal(a.pairs[i].Value, b.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MappingBuilder accumulates mapping entries with unique keys
type MappingBuilder struct {
	pairs  []Pair
	index  map[string]int
	folded map[string]bool
}

// NewMappingBuilder creates a builder sized for n entries
func NewMappingBuilder(n int) *MappingBuilder {
	return &MappingBuilder{
		pairs: make([]Pair, 0, n),
		index: make(map[string]int, n),
	}
}

// Set adds or replaces an entry
func (b *MappingBuilder) Set(key string, v Value) {
	if i, ok := b.index[key]; ok {
		b.pairs[i].Value = v
		return
	}
	b.index[key] = len(b.pairs)
	b.pairs = append(b.pairs, Pair{Key: key, Value: v})
}

// Lookup returns the current value for key
func (b *MappingBuilder) Lookup(key string) (Value, bool) {
	if i, ok := b.index[key]; ok {
		return b.pairs[i].Value, true
	}
	return Value{}, false
}

// Append folds v into key: a second occurrence turns the entry into a
// sequence, later occurrences extend it. Used for repeated XML children.
func (b *MappingBuilder) Append(key string, v Value) {
	i, ok := b.index[key]
	if !ok {
		b.Set(key, v)
		return
	}
	prev := b.pairs[i].Value
	if prev.kind == KindSequence && b.folded[key] {
		// the fold is owned by the builder until Build
		b.pairs[i].Value.items = append(prev.items, v)
		return
	}
	b.pairs[i].Value = Value{kind: KindSequence, items: []Value{prev, v}}
	if b.folded == nil {
		b.folded = make(map[string]bool)
	}
	b.folded[key] = true
}

// Len returns the number of entries so far
func (b *MappingBuilder) Len() int { return len(b.pairs) }

// Build returns the finished mapping. The builder must not be reused.
func (b *MappingBuilder) Build() Value {
	return Value{kind: KindMapping, pairs: b.pairs}
}
