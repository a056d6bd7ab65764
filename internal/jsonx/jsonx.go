// Package jsonx decodes and encodes JSON while keeping integers and floats
// apart: numbers without a fraction or exponent decode as int64, all others
// as float64, and integral float64 values encode with a trailing ".0".
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrNotObject is returned by DecodeObject when the document is not a JSON object.
var ErrNotObject = errors.New("json document is not an object")

// Decode parses a single JSON document.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return convertNumbers(v), nil
}

// DecodeObject parses a JSON object.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, v)
	}
	return obj, nil
}

func convertNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = convertNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = convertNumbers(item)
		}
		return val
	case json.Number:
		return Number(string(val))
	default:
		return v
	}
}

// Number converts a JSON number literal to int64 or float64.
// Integers that overflow int64 fall back to float64.
func Number(lit string) any {
	if !strings.ContainsAny(lit, ".eE") {
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return n
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	return f
}

// Encode marshals v. Integral float64 values are written as "1.0" rather than "1".
func Encode(v any) ([]byte, error) {
	return json.Marshal(markFloats(v))
}

// EncodeIndent is Encode with indentation.
func EncodeIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(markFloats(v), prefix, indent)
}

// markFloats returns a copy of v where floats are pre-rendered json.Number
// values. Containers of other concrete types are left to encoding/json.
func markFloats(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = markFloats(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = markFloats(item)
		}
		return out
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	default:
		return v
	}
}

func formatFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		// Let encoding/json report the unsupported value.
		return f
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.Abs(f) >= 1e21 || (f != 0 && math.Abs(f) < 1e-6) {
		s = strconv.FormatFloat(f, 'g', -1, 64)
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// Clone returns a deep copy of a decoded JSON tree. Maps and slices of
// other concrete types are copied through a JSON round trip.
func Clone(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64, int, float32, int32:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneObject(item)
		}
		return out
	default:
		data, err := Encode(val)
		if err != nil {
			return val
		}
		cp, err := Decode(data)
		if err != nil {
			return val
		}
		return cp
	}
}

// CloneObject deep-copies a JSON object.
func CloneObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Clone(m).(map[string]any)
}
