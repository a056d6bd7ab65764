// Package synth merges discovered tool bodies into one Go source unit and
// loads it into an isolated yaegi interpreter. Each tool becomes a
// top-level function named by EntryIdent.
package synth

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"slices"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/flemzord/toolbench/internal/catalog"
	"github.com/flemzord/toolbench/internal/tool"
)

// UnitPackage is the package clause of every synthesized unit.
const UnitPackage = "main"

const entrySuffix = "_Entrypoint"

var (
	// ErrNoDescriptors is returned when there is nothing to synthesize.
	ErrNoDescriptors = errors.New("no tool descriptors")

	// ErrDuplicateEntry is returned when two descriptors map to the same
	// qualified name or entry identifier.
	ErrDuplicateEntry = errors.New("duplicate entry point")
)

// SynthesisError reports that the merged unit could not be assembled or
// loaded. No partial unit is ever returned alongside it.
type SynthesisError struct {
	// Stage is "assemble", "parse", "load" or "bind".
	Stage string
	// Tool names the descriptor involved, when known.
	Tool string
	Err  error
}

func (e *SynthesisError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("synthesis failed at %s (%s): %v", e.Stage, e.Tool, e.Err)
	}
	return fmt.Sprintf("synthesis failed at %s: %v", e.Stage, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Unit is a loaded synthesized namespace. It is read-only once built.
type Unit struct {
	// Registry holds one tool per descriptor, in descriptor order.
	Registry *tool.Registry

	// Source is the formatted unit text that was loaded.
	Source string
}

// EntryIdent returns the Go identifier a qualified name is emitted under.
func EntryIdent(name string) string {
	return "Tool_" + catalog.IdentKey(name) + entrySuffix
}

// Assemble renders the merged unit: the deduplicated, sorted union of all
// imports followed by one function per descriptor. Imports that no body
// uses are dropped and the result is gofmt-formatted.
func Assemble(descs []catalog.Descriptor) (string, error) {
	if len(descs) == 0 {
		return "", &SynthesisError{Stage: "assemble", Err: ErrNoDescriptors}
	}

	names := make(map[string]bool, len(descs))
	idents := make(map[string]string, len(descs))
	imports := make(map[string]catalog.Import)
	for _, d := range descs {
		if names[d.Name] {
			return "", &SynthesisError{Stage: "assemble", Tool: d.Name, Err: fmt.Errorf("%w: %s", ErrDuplicateEntry, d.Name)}
		}
		names[d.Name] = true
		ident := EntryIdent(d.Name)
		if other, ok := idents[ident]; ok {
			return "", &SynthesisError{Stage: "assemble", Tool: d.Name,
				Err: fmt.Errorf("%w: %s and %s both map to %s", ErrDuplicateEntry, other, d.Name, ident)}
		}
		idents[ident] = d.Name
		for _, imp := range d.Imports {
			imports[imp.Spec()] = imp
		}
	}

	specs := make([]string, 0, len(imports))
	for spec := range imports {
		specs = append(specs, spec)
	}
	slices.Sort(specs)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "package %s\n\n", UnitPackage)
	if len(specs) > 0 {
		buf.WriteString("import (\n")
		for _, spec := range specs {
			fmt.Fprintf(&buf, "\t%s\n", spec)
		}
		buf.WriteString(")\n")
	}
	for _, d := range descs {
		fmt.Fprintf(&buf, "\n// %s from %s\nfunc %s(%s) %s %s\n", d.Name, d.File, EntryIdent(d.Name), d.Params, d.Results, d.Body)
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "unit.go", buf.Bytes(), parser.ParseComments)
	if err != nil {
		return "", &SynthesisError{Stage: "parse", Err: err}
	}
	pruneImports(fset, f)

	var out bytes.Buffer
	if err := format.Node(&out, fset, f); err != nil {
		return "", &SynthesisError{Stage: "parse", Err: err}
	}
	return out.String(), nil
}

// pruneImports removes named and unnamed imports no function refers to.
// Blank and dot imports are kept, as are imports whose package name
// cannot be determined from the path.
func pruneImports(fset *token.FileSet, f *ast.File) {
	for _, imp := range slices.Clone(f.Imports) {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := ""
		if imp.Name != nil {
			name = imp.Name.Name
			if name == "_" || name == "." {
				continue
			}
		}
		local := name
		if local == "" {
			var ok bool
			if local, ok = packageName(path); !ok {
				continue
			}
		}
		if usesIdent(f, local) {
			continue
		}
		if name != "" {
			astutil.DeleteNamedImport(fset, f, name, path)
		} else {
			astutil.DeleteImport(fset, f, path)
		}
	}
}

// packageName returns the name an unnamed import of path binds. Standard
// library names come from the interpreter's symbol table; other paths use
// the last element without a /vN or .vN version suffix.
func packageName(path string) (string, bool) {
	for key := range stdlib.Symbols {
		if rest, ok := strings.CutPrefix(key, path+"/"); ok && !strings.Contains(rest, "/") {
			return rest, true
		}
	}

	elem := path[strings.LastIndex(path, "/")+1:]
	if isMajorVersion(elem) {
		trimmed := strings.TrimSuffix(path, "/"+elem)
		if trimmed == path {
			return "", false
		}
		elem = trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	if i := strings.LastIndex(elem, ".v"); i > 0 && isMajorVersion(elem[i+1:]) {
		elem = elem[:i]
	}
	if !token.IsIdentifier(elem) {
		return "", false
	}
	return elem, true
}

func isMajorVersion(s string) bool {
	digits, ok := strings.CutPrefix(s, "v")
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.Atoi(digits)
	return err == nil
}

func usesIdent(f *ast.File, name string) bool {
	used := false
	ast.Inspect(f, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if ok {
			if id, ok := sel.X.(*ast.Ident); ok && id.Name == name {
				used = true
			}
		}
		return !used
	})
	return used
}

// Synthesize assembles the descriptors and loads the unit into a fresh
// interpreter given the standard library symbols. Either every descriptor
// is bound or a SynthesisError is returned.
func Synthesize(descs []catalog.Descriptor) (*Unit, error) {
	src, err := Assemble(descs)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &SynthesisError{Stage: "load", Err: err}
	}
	if err := evalSafe(i, src); err != nil {
		return nil, &SynthesisError{Stage: "load", Err: err}
	}

	reg := tool.NewRegistry()
	for _, d := range descs {
		fn, err := bind(i, EntryIdent(d.Name))
		if err != nil {
			return nil, &SynthesisError{Stage: "bind", Tool: d.Name, Err: err}
		}
		info := d.Info
		info.Name = d.Name
		if err := reg.Register(tool.Adapt(info, fn)); err != nil {
			return nil, &SynthesisError{Stage: "bind", Tool: d.Name, Err: err}
		}
	}
	return &Unit{Registry: reg, Source: src}, nil
}

// evalSafe evaluates src, converting interpreter panics into errors.
func evalSafe(i *interp.Interpreter, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	_, err = i.Eval(src)
	return err
}

func bind(i *interp.Interpreter, ident string) (fn tool.Func, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	v, err := i.Eval(UnitPackage + "." + ident)
	if err != nil {
		return nil, err
	}
	f, ok := v.Interface().(func(map[string]any, map[string]any) (any, error))
	if !ok {
		return nil, fmt.Errorf("%s has type %s, want func(map[string]any, map[string]any) (any, error)", ident, v.Type())
	}
	return f, nil
}
