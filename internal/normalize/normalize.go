// Package normalize coerces caller-supplied tool arguments into the shapes
// tools expect. It never fails: anything it cannot interpret is passed
// through unchanged.
package normalize

import (
	"slices"
	"strings"

	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/tool"
)

const maxSchemaDepth = 16

// Normalize returns a normalized copy of raw. The input is not modified.
//
// Top-level string values whose first byte is '{' or '[' are parsed as JSON
// and replaced when they parse; leading whitespace disables parsing. Integer values found at any of floatPaths are
// then converted to float64.
func Normalize(raw map[string]any, floatPaths []string) map[string]any {
	args := make(map[string]any, len(raw))
	for k, v := range raw {
		args[k] = jsonx.Clone(v)
		s, ok := v.(string)
		if !ok {
			continue
		}
		if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
			continue
		}
		if parsed, err := jsonx.Decode([]byte(s)); err == nil {
			args[k] = parsed
		}
	}

	for _, p := range floatPaths {
		segs, err := ParsePath(p)
		if err != nil || len(segs) == 0 {
			continue
		}
		promote(args, segs)
	}
	return args
}

// promote walks segs from node and converts integers at the end to float64.
func promote(node any, segs []Segment) any {
	if len(segs) == 0 {
		return toFloat(node)
	}
	seg, rest := segs[0], segs[1:]
	switch n := node.(type) {
	case map[string]any:
		if seg.Kind == KindWildcard {
			for k, v := range n {
				n[k] = promote(v, rest)
			}
			return n
		}
		if seg.Kind != KindKey {
			return n
		}
		if v, ok := n[seg.Key]; ok {
			n[seg.Key] = promote(v, rest)
		}
		return n
	case []any:
		switch seg.Kind {
		case KindWildcard:
			for i, v := range n {
				n[i] = promote(v, rest)
			}
		case KindIndex:
			if seg.Index >= 0 && seg.Index < len(n) {
				n[seg.Index] = promote(n[seg.Index], rest)
			}
		}
		return n
	}
	return node
}

func toFloat(v any) any {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	}
	return v
}

// FloatFields returns the sorted top-level field names of result whose
// values are floating point. A JSON object encoded as a string is decoded
// first. Any other result yields nil.
func FloatFields(result any) []string {
	obj, ok := result.(map[string]any)
	if !ok {
		s, isString := result.(string)
		if !isString || !strings.HasPrefix(strings.TrimSpace(s), "{") {
			return nil
		}
		decoded, err := jsonx.DecodeObject([]byte(s))
		if err != nil {
			return nil
		}
		obj = decoded
	}
	var fields []string
	for k, v := range obj {
		switch v.(type) {
		case float64, float32:
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return fields
}

// SchemaFloatPaths derives float paths from declared parameter schemas:
// every "number" node becomes a path, descending into object properties
// and array items ("[*]").
func SchemaFloatPaths(params []tool.Param) []string {
	var out []string
	for _, p := range params {
		collect(p.Name, p.Schema, 0, &out)
	}
	return out
}

func collect(prefix string, schema map[string]any, depth int, out *[]string) {
	if schema == nil || depth > maxSchemaDepth {
		return
	}
	typ := tool.SchemaType(schema)
	if typ == "" {
		if _, ok := schema["properties"]; ok {
			typ = "object"
		} else if _, ok := schema["items"]; ok {
			typ = "array"
		}
	}
	switch typ {
	case "number":
		*out = append(*out, prefix)
	case "object":
		props, _ := schema["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			sub, _ := props[k].(map[string]any)
			collect(prefix+"."+k, sub, depth+1, out)
		}
	case "array":
		items, _ := schema["items"].(map[string]any)
		collect(prefix+"[*]", items, depth+1, out)
	}
}

// Paths picks the float paths for a call: schema-derived paths when the
// tool declares parameter types, the caller's paths otherwise.
func Paths(info tool.Info, callerPaths []string) []string {
	if info.HasParamTypes() {
		return SchemaFloatPaths(info.Params)
	}
	return callerPaths
}
