// Package payload models the schema-less bodies exchanged with upstream
// services. A Value is a tagged variant over the JSON shapes the gateway
// cares about: objects and arrays participate in joining, everything else
// passes through untouched.
package payload

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Kind classifies a decoded payload.
type Kind int

// Payload kinds. Raw covers bodies that are not valid JSON.
const (
	Raw Kind = iota
	Object
	Array
	Scalar
)

// Value is a decoded upstream body. Object and Array values hold mutable
// map[string]any / []any trees; Raw values keep the original bytes.
type Value struct {
	kind Kind
	data any
	raw  []byte
}

// Decode classifies and decodes an upstream body. Bodies that are not valid
// JSON come back as Raw. Numbers are preserved as json.Number so re-encoding
// is byte-stable.
func Decode(body []byte) Value {
	if !gjson.ValidBytes(body) {
		return Value{kind: Raw, raw: body}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return Value{kind: Raw, raw: body}
	}

	parsed := gjson.ParseBytes(body)
	switch {
	case parsed.IsObject():
		return Value{kind: Object, data: data, raw: body}
	case parsed.IsArray():
		return Value{kind: Array, data: data, raw: body}
	default:
		return Value{kind: Scalar, data: data, raw: body}
	}
}

// FromObject wraps an already-decoded object.
func FromObject(obj map[string]any) Value {
	return Value{kind: Object, data: obj}
}

// FromArray wraps an already-decoded array.
func FromArray(arr []any) Value {
	return Value{kind: Array, data: arr}
}

// Kind returns the payload kind.
func (v Value) Kind() Kind { return v.kind }

// Structured reports whether the payload is a JSON object or array, the only
// shapes the join engine operates on.
func (v Value) Structured() bool { return v.kind == Object || v.kind == Array }

// Object returns the payload as a mutable object.
func (v Value) Object() (map[string]any, bool) {
	obj, ok := v.data.(map[string]any)
	return obj, ok && v.kind == Object
}

// Array returns the payload as a mutable array.
func (v Value) Array() ([]any, bool) {
	arr, ok := v.data.([]any)
	return arr, ok && v.kind == Array
}

// Raw returns the original body bytes.
func (v Value) Raw() []byte { return v.raw }

// Interface returns the decoded tree (nil for Raw payloads).
func (v Value) Interface() any { return v.data }

// Encode serialises the payload with a stable encoding: map keys sorted,
// numbers kept verbatim via json.Number, and uuid.UUID / time.Time values
// rendered in their canonical string forms. Raw payloads return the original
// bytes unchanged.
func (v Value) Encode() ([]byte, error) {
	if v.kind == Raw {
		return v.raw, nil
	}
	return json.Marshal(canonicalize(v.data))
}

// canonicalize rewrites typed values injected by Go code into their canonical
// JSON string forms. Trees coming straight from Decode are untouched.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = canonicalize(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = canonicalize(item)
		}
		return t
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
