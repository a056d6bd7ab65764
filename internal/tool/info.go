package tool

import (
	"slices"
	"strings"
)

// Param describes one declared parameter.
type Param struct {
	Name        string         `json:"name"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Info is the presentation metadata of a tool. It is never used to validate
// arguments; tools check their own input.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      []Param        `json:"parameters"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasParamTypes reports whether any parameter declares a type.
func (i Info) HasParamTypes() bool {
	for _, p := range i.Params {
		if p.Type != "" {
			return true
		}
	}
	return false
}

// Param returns the named parameter.
func (i Info) Param(name string) (Param, bool) {
	for _, p := range i.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// ParseInfo converts a metadata record into Info. It accepts both the
// wrapped {"type": "function", "function": {...}} shape and the flat
// {name, description, parameters} shape. Parameters listed in order come
// first, in that order; any remaining parameters follow sorted by name.
func ParseInfo(meta map[string]any, order ...string) Info {
	info := Info{Metadata: meta, Params: []Param{}}
	if meta == nil {
		return info
	}

	fn := meta
	if inner, ok := meta["function"].(map[string]any); ok {
		fn = inner
	}
	info.Name, _ = fn["name"].(string)
	info.Name = strings.TrimSpace(info.Name)
	info.Description, _ = fn["description"].(string)

	params, _ := fn["parameters"].(map[string]any)
	props, _ := params["properties"].(map[string]any)
	required := map[string]bool{}
	if list, ok := params["required"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, name := range order {
		if _, ok := props[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range props {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	names = append(names, rest...)

	for _, name := range names {
		schema, _ := props[name].(map[string]any)
		p := Param{Name: name, Required: required[name], Schema: schema}
		p.Type = SchemaType(schema)
		p.Description, _ = schema["description"].(string)
		info.Params = append(info.Params, p)
	}
	return info
}

// SchemaType returns the declared JSON Schema type of a schema node. For a
// list of types the first non-null entry is returned.
func SchemaType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}
