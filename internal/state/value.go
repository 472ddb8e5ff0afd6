// internal/state/value.go
package state

import (
	"encoding/json"
	"fmt"
)

// Kind tags the shape of a stored stage output.
type Kind int

const (
	KindAbsent Kind = iota
	KindRaw
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindStructured:
		return "structured"
	default:
		return "absent"
	}
}

// Value is what a state key holds: nothing, a raw string, or a parsed JSON
// object. Readers switch on Kind and handle all three.
type Value struct {
	kind   Kind
	raw    string
	fields map[string]any
}

// Absent is the zero Value.
func Absent() Value { return Value{} }

// Raw wraps a string kept verbatim.
func Raw(s string) Value { return Value{kind: KindRaw, raw: s} }

// Structured wraps a parsed JSON object. A nil map is stored as absent.
func Structured(fields map[string]any) Value {
	if fields == nil {
		return Value{}
	}
	return Value{kind: KindStructured, fields: fields}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }
func (v Value) String() string { return fmt.Sprintf("%s(%s)", v.kind, v.Text()) }

// AsRaw returns the raw string when the value is raw.
func (v Value) AsRaw() (string, bool) {
	if v.kind != KindRaw {
		return "", false
	}
	return v.raw, true
}

// AsStructured returns the object when the value is structured. The map is
// shared with the store; callers must not mutate it.
func (v Value) AsStructured() (map[string]any, bool) {
	if v.kind != KindStructured {
		return nil, false
	}
	return v.fields, true
}

// Text renders the value as text: the raw string, the compact JSON of a
// structured value, or "" when absent.
func (v Value) Text() string {
	switch v.kind {
	case KindRaw:
		return v.raw
	case KindStructured:
		data, err := json.Marshal(v.fields)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Interface returns the JSON-serializable form: string, map, or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindRaw:
		return v.raw
	case KindStructured:
		return v.fields
	default:
		return nil
	}
}

// FromInterface converts a decoded JSON value back into a Value. Objects
// become structured, strings raw, nil absent; anything else is kept as its
// JSON text.
func FromInterface(x any) Value {
	switch t := x.(type) {
	case nil:
		return Absent()
	case map[string]any:
		return Structured(t)
	case string:
		return Raw(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return Raw(fmt.Sprint(t))
		}
		return Raw(string(data))
	}
}
