// Package dataset holds the in-memory Dataset tools operate on and the
// Loader that reads environment baselines from storage.
package dataset

import (
	"slices"

	"github.com/flemzord/toolbench/internal/jsonx"
)

// Dataset maps table name to a table object, which maps record ID to a record.
// It is a plain map so tool code can receive it as map[string]any.
type Dataset map[string]any

// Clone returns a deep copy of d.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	return Dataset(jsonx.CloneObject(map[string]any(d)))
}

// Table returns the named table, or nil if it is missing or not an object.
func (d Dataset) Table(name string) map[string]any {
	t, _ := d[name].(map[string]any)
	return t
}

// Record returns one record from a table.
func (d Dataset) Record(table, id string) (map[string]any, bool) {
	t := d.Table(table)
	if t == nil {
		return nil, false
	}
	r, ok := t[id].(map[string]any)
	return r, ok
}

// Tables returns the table names in sorted order.
func (d Dataset) Tables() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Counts returns the number of records per table.
func (d Dataset) Counts() map[string]int {
	out := make(map[string]int, len(d))
	for name := range d {
		out[name] = len(d.Table(name))
	}
	return out
}
