package ipc

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Document is a schema-less request or response payload. Values are strings,
// numbers, bools, nil, []interface{} or nested objects.
type Document map[string]interface{}

// Kind names the JSON-like type a field is expected to have.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindNumber
	KindBool
	KindArray
	KindObject
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "number_integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// OK returns the success envelope.
func OK() Document {
	return Document{"result": "ok"}
}

// Error returns the error envelope carrying a human-readable message.
func Error(msg string) Document {
	return Document{"error": msg}
}

// Errorf is Error with formatting.
func Errorf(format string, args ...interface{}) Document {
	return Error(fmt.Sprintf(format, args...))
}

// IsError reports whether d is an error envelope.
func (d Document) IsError() bool {
	_, ok := d["error"]
	return ok
}

// ErrorMessage returns the message of an error envelope, or "" for any other document.
func (d Document) ErrorMessage() string {
	if msg, ok := d["error"].(string); ok {
		return msg
	}
	return ""
}

// String returns the string value of key.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Int returns the integer value of key. Floats without a fractional part are
// accepted since numbers arrive as float64 off the wire.
func (d Document) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	return asInteger(v)
}

// Bool returns the boolean value of key.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Object returns the nested object stored at key.
func (d Document) Object(key string) (Document, bool) {
	switch v := d[key].(type) {
	case Document:
		return v, true
	case map[string]interface{}:
		return Document(v), true
	default:
		return nil, false
	}
}

// Keys returns the document keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return t.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Document(t).Clone())
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// ValidationError reports a missing or mistyped request field.
type ValidationError struct {
	Field    string
	Expected Kind
	Missing  bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("Missing %q", e.Field)
	}
	return fmt.Sprintf("Field %q does not have the correct type, expected %s", e.Field, e.Expected)
}

// Envelope turns the validation failure into an error response.
func (e *ValidationError) Envelope() Document {
	return Error(e.Error())
}

// ExpectField checks that field is present in d and has the given kind.
func ExpectField(d Document, field string, kind Kind) error {
	v, ok := d[field]
	if !ok {
		return &ValidationError{Field: field, Expected: kind, Missing: true}
	}
	if !IsKind(v, kind) {
		return &ValidationError{Field: field, Expected: kind}
	}
	return nil
}

// OptionalField checks that field, if present, has the given kind.
func OptionalField(d Document, field string, kind Kind) error {
	v, ok := d[field]
	if !ok {
		return nil
	}
	if !IsKind(v, kind) {
		return &ValidationError{Field: field, Expected: kind}
	}
	return nil
}

// IsKind reports whether v is a value of the given kind.
func IsKind(v interface{}, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInteger:
		_, ok := asInteger(v)
		return ok
	case KindNumber:
		_, ok := asFloat(v)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindArray:
		_, ok := v.([]interface{})
		return ok
	case KindObject:
		switch v.(type) {
		case Document, map[string]interface{}:
			return true
		}
		return false
	case KindNull:
		return v == nil
	}
	return false
}

func asInteger(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return asInteger(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInteger(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Decode copies the fields of d into the struct pointed to by out, matching
// `mapstructure` tags and converting wire floats into integer fields.
func Decode(d Document, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(map[string]interface{}(d)); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
