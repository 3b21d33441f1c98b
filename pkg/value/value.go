// Package value implements the heterogeneous JSON-representable value
// used for task arguments and memory-store entries (spec §9: "Heterogeneous
// JSON values"). It is a tagged sum type rather than a bare interface{} so
// that fingerprinting (pkg/cache) and argument validation (pkg/executor)
// can canonicalize values without reflecting on arbitrary Go types.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind int

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

// Value is a recursive JSON-representable sum type: Null | Bool | Int |
// Float | String | Bytes | List<Value> | Map<string,Value>.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	list  []Value
	m     map[string]Value
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, bytes: append([]byte(nil), b...)} }
func List(items []Value) Value    { return Value{kind: KindList, list: items} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) {
	if v.kind == KindFloat {
		return v.f, true
	}
	if v.kind == KindInt {
		return float64(v.i), true
	}
	return 0, false
}
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
// AsBytes returns the bytes of a Bytes value. A String value is read as
// standard base64, since Bytes cross the wire as base64 text and decode
// back as String; it reports false when that text is not valid base64.
func (v Value) AsBytes() ([]byte, bool) {
	switch v.kind {
	case KindBytes:
		return v.bytes, true
	case KindString:
		b, err := base64.StdEncoding.DecodeString(v.s)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}
func (v Value) AsList() ([]Value, bool)    { return v.list, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// MarshalJSON implements json.Marshaler. Bytes are base64-encoded per the
// wire convention used for binary payloads elsewhere in the protocol.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bytes))
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fractional
// part decode as Int; everything else decodes structurally. There is no
// way to distinguish an intentional Bytes value from a String on the
// wire: a Bytes value decodes as a String holding its base64 text, and
// callers that need Bytes track that out of band (e.g. the field name)
// and read it with AsBytes, matching the boundary contract in spec §9.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, item := range t {
			out[i] = fromInterface(item)
		}
		return List(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, item := range t {
			out[k] = fromInterface(item)
		}
		return Map(out)
	default:
		return Null()
	}
}

// Canonical returns a deterministic JSON encoding suitable for
// fingerprinting: map keys are sorted, so two structurally equal values
// always produce the same bytes regardless of original key order (this
// fixes the "textually different but structurally equal" cache-miss
// flagged in spec §9).
func Canonical(v Value) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		fmt.Fprintf(buf, "%d", v.i)
	case KindFloat:
		fmt.Fprintf(buf, "%g", v.f)
	case KindString:
		b, _ := json.Marshal(v.s)
		buf.Write(b)
	case KindBytes:
		b, _ := json.Marshal(base64.StdEncoding.EncodeToString(v.bytes))
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, v.m[k])
		}
		buf.WriteByte('}')
	}
}

// CanonicalList returns a deterministic encoding of an argument list,
// used by pkg/cache to build a fingerprint.
func CanonicalList(values []Value) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonical(&buf, v)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
