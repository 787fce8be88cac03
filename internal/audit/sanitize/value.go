// Package sanitize models request payloads as a closed set of JSON-like
// values and redacts sensitive fields before they are persisted.
package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindList
	KindMap
)

// Value is one of: null, a scalar (string, bool or json.Number), a list of
// values or a map of string keys to values. The zero Value is null. Values
// are immutable once built.
type Value struct {
	kind   Kind
	scalar any
	items  []Value
	fields map[string]Value
}

func Null() Value {
	return Value{}
}

// String builds a string scalar.
func String(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

func Bool(b bool) Value {
	return Value{kind: KindScalar, scalar: b}
}

func Number(n json.Number) Value {
	return Value{kind: KindScalar, scalar: n}
}

func List(items ...Value) Value {
	return Value{kind: KindList, items: items}
}

func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, fields: fields}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Scalar returns the scalar payload, or nil for non-scalars.
func (v Value) Scalar() any {
	return v.scalar
}

// Items returns list elements, or nil for non-lists.
func (v Value) Items() []Value {
	return v.items
}

// Get returns the field named key of a map value.
func (v Value) Get(key string) (Value, bool) {
	f, ok := v.fields[key]
	return f, ok
}

// Keys returns a map's keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromJSON parses a JSON document. Numbers keep their textual form.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Value{}, fmt.Errorf("decode json value: %w", err)
	}
	return FromAny(doc), nil
}

// FromAny converts the output of encoding/json decoding, or any compatible
// Go value, into a Value. Unsupported types are rendered with fmt.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t)
	case float64:
		return Number(json.Number(fmt.Sprint(t)))
	case int:
		return Number(json.Number(fmt.Sprint(t)))
	case int64:
		return Number(json.Number(fmt.Sprint(t)))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Map(fields)
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = String(item)
		}
		return Map(fields)
	}
	return String(fmt.Sprint(v))
}

// FromHeaders maps each header to its values joined with ", ".
func FromHeaders(h http.Header) Value {
	fields := make(map[string]Value, len(h))
	for k, vs := range h {
		fields[k] = String(strings.Join(vs, ", "))
	}
	return Map(fields)
}

// FromForm maps each form field to a string, or a list when repeated.
func FromForm(values url.Values) Value {
	fields := make(map[string]Value, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			fields[k] = String(vs[0])
			continue
		}
		fields[k] = FromAny(vs)
	}
	return Map(fields)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindList:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case KindMap:
		return json.Marshal(v.fields)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
