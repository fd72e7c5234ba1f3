// Package schema interprets copyright form templates against a data context.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates Value variants.
type Kind int

const (
	KindMissing Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Value is a permissive JSON-like document. The zero Value is Missing.
type Value struct {
	kind Kind
	text string
	b    bool
	obj  map[string]Value
	arr  []Value
}

func Missing() Value            { return Value{} }
func Null() Value               { return Value{kind: KindNull} }
func String(s string) Value     { return Value{kind: KindString, text: s} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Number keeps the literal text of a JSON number.
func Number(n json.Number) Value { return Value{kind: KindNumber, text: n.String()} }

// Object copies fields into a new object value.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

func (v Value) Kind() Kind { return v.kind }

// IsPresent is false for Missing and Null.
func (v Value) IsPresent() bool { return v.kind != KindMissing && v.kind != KindNull }

// Text renders scalars for display. Containers, null and missing give "".
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Get returns the named field of an object, or Missing.
func (v Value) Get(key string) Value {
	if v.kind != KindObject {
		return Missing()
	}
	return v.obj[key]
}

// Index returns the i-th array element, or Missing.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Missing()
	}
	return v.arr[i]
}

// Len is the element count of an array or field count of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Resolve walks a dot separated path such as "journal.title" or
// "authors.0.name". Any absent segment yields Missing.
func Resolve(v Value, path string) Value {
	path = strings.TrimSpace(path)
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case KindObject:
			cur = cur.Get(seg)
		case KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return Missing()
			}
			cur = cur.Index(i)
		default:
			return Missing()
		}
		if cur.kind == KindMissing {
			return cur
		}
	}
	return cur
}

// FromJSON decodes raw JSON, keeping numbers as their literal text.
func FromJSON(raw []byte) (Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Missing(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return Missing(), fmt.Errorf("decode value: %w", err)
	}
	return FromAny(decoded)
}

// FromAny converts decoded JSON or arbitrary Go values. Values that are not
// plain JSON shapes go through encoding/json first.
func FromAny(in interface{}) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(json.Number(strconv.FormatFloat(t, 'f', -1, 64))), nil
	case int:
		return Number(json.Number(strconv.Itoa(t))), nil
	case int64:
		return Number(json.Number(strconv.FormatInt(t, 10))), nil
	case map[string]interface{}:
		obj := make(map[string]Value, len(t))
		for k, raw := range t {
			val, err := FromAny(raw)
			if err != nil {
				return Missing(), err
			}
			obj[k] = val
		}
		return Value{kind: KindObject, obj: obj}, nil
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for _, raw := range t {
			val, err := FromAny(raw)
			if err != nil {
				return Missing(), err
			}
			arr = append(arr, val)
		}
		return Value{kind: KindArray, arr: arr}, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return Missing(), fmt.Errorf("encode %T: %w", in, err)
	}
	return FromJSON(raw)
}

// MarshalJSON emits objects with sorted keys. Missing encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMissing, KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := v.obj[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(raw []byte) error {
	decoded, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
