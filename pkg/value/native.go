/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: native.go
Description: Conversion between normalized values and plain Go data. Decoders that
produce interface{} trees (YAML, TOML, JSON numbers, EXIF tags) are funnelled through
FromNative; renderers get plain maps and slices from Native, or ordered JSON from
MarshalJSON.
*/

package value

import (
	"bytes"
	"encoding/base64"
	stdjson "encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// TimeLayout is the canonical string form for date and time cells
const TimeLayout = time.RFC3339Nano

// numberLiteral matches json.Number lookalikes from other decoders
type numberLiteral interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// FromNative converts decoder output into a Value
func FromNative(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case bool:
		return Bool(val)
	case int:
		return Int(int64(val))
	case int8:
		return Int(int64(val))
	case int16:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint:
		return fromUint(uint64(val))
	case uint8:
		return Int(int64(val))
	case uint16:
		return Int(int64(val))
	case uint32:
		return Int(int64(val))
	case uint64:
		return fromUint(val)
	case float32:
		return Float(float64(val))
	case float64:
		return Float(val)
	case stdjson.Number:
		return FromNumber(string(val))
	case string:
		return String(val)
	case []byte:
		return Bytes(val)
	case time.Time:
		return String(val.Format(TimeLayout))
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromNative(item)
		}
		return Value{kind: KindSequence, items: items}
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := NewMappingBuilder(len(keys))
		for _, k := range keys {
			b.Set(k, FromNative(val[k]))
		}
		return b.Build()
	case map[interface{}]interface{}:
		keys := make([]string, 0, len(val))
		byKey := make(map[string]interface{}, len(val))
		for k, item := range val {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			byKey[ks] = item
		}
		sort.Strings(keys)
		b := NewMappingBuilder(len(keys))
		for _, k := range keys {
			b.Set(k, FromNative(byKey[k]))
		}
		return b.Build()
	case numberLiteral:
		return FromNumber(val.String())
	case fmt.Stringer:
		return String(val.String())
	}

	// Typed slices and maps from decoders that do not use interface{}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromNative(rv.Index(i).Interface())
		}
		return Value{kind: KindSequence, items: items}
	case reflect.Map:
		native := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			native[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return FromNative(native)
	case reflect.Ptr:
		if rv.IsNil() {
			return Null()
		}
		return FromNative(rv.Elem().Interface())
	}
	return String(fmt.Sprint(v))
}

// FromNumber parses a decimal literal, preferring integers
func FromNumber(lit string) Value {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return Float(f)
	}
	return String(lit)
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Native converts the value into plain Go data. Mapping order is lost.
func (v Value) Native() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindSequence:
		out := make([]interface{}, len(v.items))
		for i, item := range v.items {
			out[i] = item.Native()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.pairs))
		for _, p := range v.pairs {
			out[p.Key] = p.Value.Native()
		}
		return out
	}
	return nil
}

// MarshalJSON writes the value as JSON keeping mapping order.
// Bytes are base64 encoded; non-finite floats are written as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return writeJSONString(buf, strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		return writeJSONString(buf, v.s)
	case KindBytes:
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(v.raw))
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, p.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := p.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode string: %w", err)
	}
	buf.Write(encoded)
	return nil
}
