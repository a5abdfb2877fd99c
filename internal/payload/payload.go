// Package payload implements the normalizer and canonical payload tree
// described in spec.md §4.2 and §9: a tagged sum of scalars, byte blobs,
// ordered sequences, and string-keyed maps, plus the byte-blob envelope
// convention that lets a schema-less encoder round-trip binary data.
package payload

import (
	"encoding/base64"
	"fmt"
	"reflect"
)

// Kind discriminates the tagged sum held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBlob
	KindList
	KindMap
)

// envelopeTypeField and envelopeDataField are the envelope fields (with
// envelopeTypeValue as the type marker) the normalizer uses to
// tag byte blobs so that encoders which only understand strings can still
// carry binary data losslessly.
const (
	envelopeTypeField = "__type"
	envelopeDataField = "__data"
	envelopeTypeValue = "Buffer"
)

// Value is the canonical, encoder-agnostic representation of a packet
// payload tree.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	Blob []byte
	List []Value
	Map  map[string]Value
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func Bool(v bool) Value   { return Value{Kind: KindBool, Bool: v} }
func Int(v int64) Value   { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value { return Value{Kind: KindFloat, Flt: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Blob(v []byte) Value {
	//1.- Defensively copy so callers mutating their buffer afterwards cannot
	// corrupt the stored payload.
	clone := append([]byte(nil), v...)
	return Value{Kind: KindBlob, Blob: clone}
}
func List(v []Value) Value { return Value{Kind: KindList, List: v} }
func Map(v map[string]Value) Value { return Value{Kind: KindMap, Map: v} }

// Normalize walks an arbitrary Go value (as produced by an upstream packet
// source: maps, slices, scalars, []byte, or nil) and converts it into the
// canonical Value tree. Normalize is total: every payload the packet source
// can produce has a Value representation.
func Normalize(v any) Value {
	if v == nil {
		return Null
	}
	switch t := v.(type) {
	case Value:
		return t
	case []byte:
		return Blob(t)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		//1.- Ordered sequences recurse element-wise, preserving emission order.
		out := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return List(out)
	case reflect.Map:
		//2.- String-keyed maps recurse value-wise; key order is not
		// semantically significant so keys are walked directly.
		out := make(map[string]Value, rv.Len())
		for _, key := range rv.MapKeys() {
			out[fmt.Sprint(key.Interface())] = Normalize(rv.MapIndex(key).Interface())
		}
		return Map(out)
	case reflect.Struct:
		//3.- Structs are treated as maps keyed by field name so hand-built
		// packet descriptors can be passed through without a prior
		// marshal-to-map step.
		out := make(map[string]Value, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			out[field.Name] = Normalize(rv.Field(i).Interface())
		}
		return Map(out)
	default:
		return String(fmt.Sprint(v))
	}
}

// Native converts a Value back into plain Go types (map[string]any, []any,
// string, int64, float64, bool, []byte, nil) for consumers that don't need
// the tagged-sum representation.
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindString:
		return v.Str
	case KindBlob:
		return append([]byte(nil), v.Blob...)
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// MapGet returns the value stored under key in a KindMap Value.
func (v Value) MapGet(key string) (Value, bool) {
	if v.Kind != KindMap || v.Map == nil {
		return Value{}, false
	}
	val, ok := v.Map[key]
	return val, ok
}

// AsInt64 returns the integer form of a KindInt (or KindFloat) Value.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		return int64(v.Flt), true
	default:
		return 0, false
	}
}

// AsList returns the elements of a KindList Value.
func (v Value) AsList() ([]Value, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	return v.List, true
}

// ToEncodable converts the Value tree into a generic interface{} tree ready
// for a schema-less tag-length-value encoder, applying the byte-blob
// envelope convention: {"__type": "Buffer", "__data": <base64>}.
func ToEncodable(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindString:
		return v.Str
	case KindBlob:
		return map[string]any{
			envelopeTypeField: envelopeTypeValue,
			envelopeDataField: base64.StdEncoding.EncodeToString(v.Blob),
		}
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = ToEncodable(e)
		}
		return out
	case KindMap:
		// Key order here is irrelevant: the codec's canonical msgpack
		// handle sorts map keys itself before encoding.
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = ToEncodable(e)
		}
		return out
	default:
		return nil
	}
}

// FromDecoded is the inverse of ToEncodable: it walks a generic tree as
// produced by the schema-less decoder and materializes byte blobs from any
// map matching the envelope shape exactly.
func FromDecoded(raw any) Value {
	if raw == nil {
		return Null
	}
	switch t := raw.(type) {
	case []byte:
		return Blob(t)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int64:
		return Int(t)
	case uint64:
		return Int(int64(t))
	case int:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromDecoded(e)
		}
		return List(out)
	case map[string]any:
		if blob, ok := asEnvelope(t); ok {
			return Blob(blob)
		}
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromDecoded(e)
		}
		return Map(out)
	case map[any]any:
		//1.- Some encoders surface native map[interface{}]interface{} values;
		// coerce them into the uniform string-keyed representation first.
		coerced := make(map[string]any, len(t))
		for k, e := range t {
			coerced[fmt.Sprint(k)] = e
		}
		return FromDecoded(coerced)
	default:
		return String(fmt.Sprint(t))
	}
}

// asEnvelope reports whether m is exactly the byte-blob envelope shape and,
// if so, returns the decoded bytes.
func asEnvelope(m map[string]any) ([]byte, bool) {
	if len(m) != 2 {
		return nil, false
	}
	typ, ok := m[envelopeTypeField].(string)
	if !ok || typ != envelopeTypeValue {
		return nil, false
	}
	data, ok := m[envelopeDataField].(string)
	if !ok {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, false
	}
	return decoded, true
}

