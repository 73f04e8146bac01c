// Package ether implements the Ether self-describing envelope (spec §3):
// the schema-tagged payload container that carries an XCP message body plus
// its metadata and free-form extra fields.
package ether

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Kind identifies which alternative of Value is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the scalar and container types Ether payload,
// metadata, and extra_fields maps may hold. A plain interface{} loses the
// int/float and string/bytes distinctions across a JSON round trip; Value
// keeps them explicit so a codec never has to guess (spec §3).
type Value struct {
	kind     Kind
	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string
	bytesVal []byte
	listVal  []Value
	mapVal   map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, boolVal: v} }

// Int wraps a signed 64-bit integer.
func Int(v int64) Value { return Value{kind: KindInt, intVal: v} }

// Float wraps a 64-bit float.
func Float(v float64) Value { return Value{kind: KindFloat, floatVal: v} }

// String wraps a UTF-8 string.
func String(v string) Value { return Value{kind: KindString, strVal: v} }

// Bytes wraps a raw byte slice.
func Bytes(v []byte) Value { return Value{kind: KindBytes, bytesVal: v} }

// List wraps an ordered sequence of values.
func List(vs ...Value) Value { return Value{kind: KindList, listVal: vs} }

// Map wraps a string-keyed collection of values.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, mapVal: m}
}

// Kind reports which alternative is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("ether: expected bool, got %s", v.kind)
	}
	return v.boolVal, nil
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("ether: expected int, got %s", v.kind)
	}
	return v.intVal, nil
}

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, fmt.Errorf("ether: expected float, got %s", v.kind)
	}
	return v.floatVal, nil
}

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("ether: expected string, got %s", v.kind)
	}
	return v.strVal, nil
}

// AsBytes returns the raw byte payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, fmt.Errorf("ether: expected bytes, got %s", v.kind)
	}
	return v.bytesVal, nil
}

// AsList returns the list elements.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("ether: expected list, got %s", v.kind)
	}
	return v.listVal, nil
}

// AsMap returns the map entries.
func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("ether: expected map, got %s", v.kind)
	}
	return v.mapVal, nil
}

// Get looks up key in a map value, returning the zero Value and false if v
// is not a map or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	got, ok := v.mapVal[key]
	return got, ok
}

// taggedEnvelope is the wire shape Value marshals to: exactly one of the
// fields is set, disambiguating int/float and string/bytes across JSON,
// which the bare encoding/json types cannot do on their own.
type taggedEnvelope struct {
	B *bool             `json:"b,omitempty"`
	I *int64            `json:"i,omitempty"`
	F *float64          `json:"f,omitempty"`
	S *string           `json:"s,omitempty"`
	X *string           `json:"x,omitempty"` // base64 bytes
	L *[]Value          `json:"l,omitempty"`
	M *map[string]Value `json:"m,omitempty"`
}

// MarshalJSON implements the tagged-value-map wire form referenced in spec §3.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(taggedEnvelope{B: &v.boolVal})
	case KindInt:
		return json.Marshal(taggedEnvelope{I: &v.intVal})
	case KindFloat:
		return json.Marshal(taggedEnvelope{F: &v.floatVal})
	case KindString:
		return json.Marshal(taggedEnvelope{S: &v.strVal})
	case KindBytes:
		enc := base64.StdEncoding.EncodeToString(v.bytesVal)
		return json.Marshal(taggedEnvelope{X: &enc})
	case KindList:
		list := v.listVal
		if list == nil {
			list = []Value{}
		}
		return json.Marshal(taggedEnvelope{L: &list})
	case KindMap:
		m := v.mapVal
		if m == nil {
			m = map[string]Value{}
		}
		return json.Marshal(taggedEnvelope{M: &m})
	default:
		return nil, fmt.Errorf("ether: unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON parses the tagged-value-map wire form.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var env taggedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch {
	case env.B != nil:
		*v = Bool(*env.B)
	case env.I != nil:
		*v = Int(*env.I)
	case env.F != nil:
		*v = Float(*env.F)
	case env.S != nil:
		*v = String(*env.S)
	case env.X != nil:
		raw, err := base64.StdEncoding.DecodeString(*env.X)
		if err != nil {
			return fmt.Errorf("ether: decoding bytes value: %w", err)
		}
		*v = Bytes(raw)
	case env.L != nil:
		*v = List(*env.L...)
	case env.M != nil:
		*v = Map(*env.M)
	default:
		*v = Null()
	}
	return nil
}
