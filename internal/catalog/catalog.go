// Package catalog discovers tools by statically inspecting Go source files.
// Files are parsed, never executed: the builder locates each struct that
// embeds toolkit.Tool, copies the exact source of its Invoke method and
// evaluates the literal returned by GetInfo.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/flemzord/toolbench/internal/tool"
)

// Descriptor describes one discovered tool. It is immutable once built.
type Descriptor struct {
	// Name is the qualified name used for dispatch.
	Name string `json:"name"`

	// TypeName is the Go type that embeds toolkit.Tool.
	TypeName string `json:"type"`

	File    string    `json:"file"`
	Line    int       `json:"line"`
	Summary string    `json:"summary"`
	Info    tool.Info `json:"info"`

	// Imports are the import lines found in the file.
	Imports []Import `json:"imports"`

	// Params, Results and Body are the exact source spans of the entry
	// method's parameter list (without parentheses), result list and body
	// (with braces). Source is the whole method declaration.
	Params  string `json:"params"`
	Results string `json:"results"`
	Body    string `json:"body"`
	Source  string `json:"source"`
}

// Catalog is the outcome of scanning one tool-source directory.
type Catalog struct {
	Dir         string            `json:"dir"`
	Descriptors []Descriptor      `json:"descriptors"`
	Problems    []*DiscoveryError `json:"-"`
}

// Names returns the qualified names in discovery order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Descriptors))
	for i, d := range c.Descriptors {
		names[i] = d.Name
	}
	return names
}

// Diagnostics returns the presentation form of every discovery problem.
func (c *Catalog) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(c.Problems))
	for i, p := range c.Problems {
		out[i] = p.Diagnostic()
	}
	return out
}

// Builder scans tool-source directories.
type Builder struct {
	fs     afs.Service
	logger *slog.Logger
}

// NewBuilder creates a Builder reading through fs. A nil fs uses afs.New().
func NewBuilder(fs afs.Service, logger *slog.Logger) *Builder {
	if fs == nil {
		fs = afs.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fs: fs, logger: logger.With("component", "catalog")}
}

// Build scans dir and returns a descriptor per usable tool. Files are
// visited in lexical order; a bad file is recorded as a problem and skipped.
// When two files declare the same name, or names with the same IdentKey,
// the first one wins.
// Build only fails when the directory cannot be listed.
func (b *Builder) Build(ctx context.Context, dir string) (*Catalog, error) {
	objects, err := b.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceDir, dir, err)
	}

	var files []string
	for _, obj := range objects {
		if obj == nil || obj.IsDir() {
			continue
		}
		name := obj.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, name)
	}
	slices.Sort(files)

	cat := &Catalog{Dir: dir, Descriptors: []Descriptor{}}
	type declared struct{ name, file string }
	seen := make(map[string]declared)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := b.fs.DownloadWithURL(ctx, url.Join(dir, name))
		if err != nil {
			cat.Problems = append(cat.Problems, &DiscoveryError{File: name, Kind: KindRead, Err: err})
			continue
		}

		descs, problems := ParseSource(name, src)
		cat.Problems = append(cat.Problems, problems...)
		for _, d := range descs {
			key := IdentKey(d.Name)
			if first, dup := seen[key]; dup {
				cat.Problems = append(cat.Problems, &DiscoveryError{
					File: name, Type: d.TypeName, Kind: KindDuplicate,
					Err: fmt.Errorf("%q collides with %q declared in %s", d.Name, first.name, first.file),
				})
				continue
			}
			seen[key] = declared{name: d.Name, file: name}
			cat.Descriptors = append(cat.Descriptors, d)
		}
	}

	for _, p := range cat.Problems {
		b.logger.Debug("discovery problem", "dir", dir, "file", p.File, "kind", string(p.Kind), "error", p.Err)
	}
	b.logger.Debug("catalog built", "dir", dir, "tools", len(cat.Descriptors), "problems", len(cat.Problems))
	return cat, nil
}
