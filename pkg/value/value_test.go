/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: value_test.go
Description: Tests for the normalized value model: constructors, mapping key
uniqueness, repeated-key folding, native conversion and ordered JSON output.
*/

package value_test

import (
	stdjson "encoding/json"
	"math"
	"testing"
	"time"

	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsNull(t *testing.T) {
	var v value.Value
	assert.True(t, v.IsNull())
	assert.Equal(t, value.KindNull, v.Kind())
	assert.Equal(t, "null", v.Kind().String())
}

func TestMappingKeysStayUnique(t *testing.T) {
	m := value.Mapping(
		value.Pair{Key: "a", Value: value.Int(1)},
		value.Pair{Key: "b", Value: value.Int(2)},
		value.Pair{Key: "a", Value: value.Int(3)},
	)

	require.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	a, ok := m.Get("a")
	require.True(t, ok)
	got, _ := a.AsInt()
	assert.Equal(t, int64(3), got)
}

func TestBuilderAppendFoldsRepeatedKeys(t *testing.T) {
	b := value.NewMappingBuilder(2)
	b.Append("item", value.String("x"))
	b.Append("item", value.String("y"))
	b.Append("item", value.String("z"))
	b.Set("tags", value.Sequence(value.String("t")))
	b.Append("tags", value.String("u"))
	m := b.Build()

	items, ok := m.Get("item")
	require.True(t, ok)
	require.Equal(t, value.KindSequence, items.Kind())
	assert.Len(t, items.Items(), 3)

	// An explicit sequence is a single occurrence, the second one folds both
	tags, _ := m.Get("tags")
	require.Len(t, tags.Items(), 2)
	assert.Equal(t, value.KindSequence, tags.Items()[0].Kind())
}

func TestBytesAreCopied(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := value.Bytes(raw)
	raw[0] = 9

	got, ok := v.AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestEqual(t *testing.T) {
	a := value.Mapping(value.Pair{Key: "x", Value: value.Sequence(value.Int(1), value.Float(math.NaN()))})
	b := value.Mapping(value.Pair{Key: "x", Value: value.Sequence(value.Int(1), value.Float(math.NaN()))})
	c := value.Mapping(value.Pair{Key: "x", Value: value.Sequence(value.Int(2))})

	assert.True(t, value.Equal(a, b))
	assert.False(t, value.Equal(a, c))
	assert.False(t, value.Equal(value.Int(1), value.Float(1)))
}

func TestFromNative(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := value.FromNative(map[string]interface{}{
		"b":     true,
		"n":     stdjson.Number("42"),
		"f":     stdjson.Number("4.5"),
		"list":  []interface{}{1, "two", nil},
		"when":  when,
		"small": uint8(7),
		"huge":  uint64(math.MaxUint64),
		"inner": map[interface{}]interface{}{1: "one"},
	})

	require.Equal(t, value.KindMapping, v.Kind())
	// keys of Go maps are sorted
	assert.Equal(t, []string{"b", "f", "huge", "inner", "list", "n", "small", "when"}, v.Keys())

	n, _ := v.Get("n")
	assert.Equal(t, value.KindInt, n.Kind())
	f, _ := v.Get("f")
	assert.Equal(t, value.KindFloat, f.Kind())
	huge, _ := v.Get("huge")
	assert.Equal(t, value.KindFloat, huge.Kind())
	list, _ := v.Get("list")
	assert.Len(t, list.Items(), 3)
	assert.True(t, list.Items()[2].IsNull())
	ts, _ := v.Get("when")
	s, _ := ts.AsString()
	assert.Equal(t, "2024-03-01T12:00:00Z", s)
	inner, _ := v.Get("inner")
	one, ok := inner.Get("1")
	require.True(t, ok)
	str, _ := one.AsString()
	assert.Equal(t, "one", str)
}

func TestFromNativeTypedSlice(t *testing.T) {
	v := value.FromNative([]string{"a", "b"})
	require.Equal(t, value.KindSequence, v.Kind())
	assert.Len(t, v.Items(), 2)
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	v := value.Mapping(
		value.Pair{Key: "z", Value: value.Int(1)},
		value.Pair{Key: "a", Value: value.Sequence(value.Bool(true), value.Null(), value.String("q\"s"))},
		value.Pair{Key: "raw", Value: value.Bytes([]byte("hi"))},
		value.Pair{Key: "nan", Value: value.Float(math.NaN())},
	)

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":[true,null,"q\"s"],"raw":"aGk=","nan":"NaN"}`, string(out))
}

func TestNativeRoundTripShape(t *testing.T) {
	v := value.Mapping(value.Pair{Key: "k", Value: value.Sequence(value.Int(1))})
	native := v.Native().(map[string]interface{})
	assert.Equal(t, []interface{}{int64(1)}, native["k"])
}

func TestProvenanceString(t *testing.T) {
	p := value.Provenance{Source: "data.zip", Entry: "a.csv", Row: 3}
	assert.Equal(t, "data.zip:a.csv@row 3", p.String())

	p = value.Provenance{Source: "book.xlsx", Section: "Sheet1", Row: 2}
	assert.Equal(t, "book.xlsx#Sheet1@row 2", p.String())
}
