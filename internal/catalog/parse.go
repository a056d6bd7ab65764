package catalog

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/flemzord/toolbench/internal/tool"
	"github.com/flemzord/toolbench/pkg/toolkit"
)

// ParseSource inspects one tool source file without executing it and
// returns a descriptor per tool unit it declares, plus per-file problems.
func ParseSource(file string, src []byte) ([]Descriptor, []*DiscoveryError) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, []*DiscoveryError{{File: file, Kind: KindParse, Err: err}}
	}

	p := &fileParser{file: file, src: src, fset: fset, ast: f}
	return p.parse()
}

type fileParser struct {
	file string
	src  []byte
	fset *token.FileSet
	ast  *ast.File
}

type unitDecl struct {
	name string
	spec *ast.TypeSpec
	doc  *ast.CommentGroup
}

func (p *fileParser) parse() ([]Descriptor, []*DiscoveryError) {
	alias := p.toolkitAlias()
	if alias == "" {
		return nil, []*DiscoveryError{{File: p.file, Kind: KindNoUnit, Err: errors.New("toolkit is not imported")}}
	}

	units := p.units(alias)
	if len(units) == 0 {
		return nil, []*DiscoveryError{{File: p.file, Kind: KindNoUnit, Err: fmt.Errorf("no type embeds %s.Tool", alias)}}
	}

	methods := p.methods()
	imports := scanImports(p.src)

	var (
		descs []Descriptor
		diags []*DiscoveryError
	)
	for _, u := range units {
		entry := methods[u.name][toolkit.EntryMethod]
		if entry == nil || entry.Body == nil {
			diags = append(diags, &DiscoveryError{
				File: p.file, Type: u.name, Kind: KindNoEntry,
				Err: fmt.Errorf("no %s method", toolkit.EntryMethod),
			})
			continue
		}
		if err := checkEntrySignature(entry.Type); err != nil {
			diags = append(diags, &DiscoveryError{File: p.file, Type: u.name, Kind: KindBadSignature, Err: err})
			continue
		}

		meta, order, err := p.metadata(methods[u.name][toolkit.InfoMethod])
		if err != nil {
			diags = append(diags, &DiscoveryError{File: p.file, Type: u.name, Kind: KindMetadata, Err: err})
			meta, order = nil, nil
		}

		info := tool.ParseInfo(meta, order...)
		if info.Name == "" {
			info.Name = SnakeCase(u.name)
		}
		if info.Description == "" && u.doc != nil {
			info.Description = firstLine(u.doc.Text())
		}

		descs = append(descs, Descriptor{
			Name:     info.Name,
			TypeName: u.name,
			File:     p.file,
			Line:     p.fset.Position(entry.Pos()).Line,
			Summary:  info.Description,
			Info:     info,
			Imports:  imports,
			Params:   p.span(entry.Type.Params.Opening+1, entry.Type.Params.Closing),
			Results:  p.results(entry.Type),
			Body:     p.span(entry.Body.Lbrace, entry.Body.Rbrace+1),
			Source:   p.span(entry.Pos(), entry.End()),
		})
	}
	return descs, diags
}

// toolkitAlias returns the local name of the toolkit import, or "".
func (p *fileParser) toolkitAlias() string {
	for _, imp := range p.ast.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil || path != toolkit.ImportPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return "toolkit"
	}
	return ""
}

// units returns the struct types embedding <alias>.Tool, in source order.
func (p *fileParser) units(alias string) []unitDecl {
	var out []unitDecl
	for _, decl := range p.ast.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok || !embedsTool(st, alias) {
				continue
			}
			doc := ts.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			out = append(out, unitDecl{name: ts.Name.Name, spec: ts, doc: doc})
		}
	}
	return out
}

func embedsTool(st *ast.StructType, alias string) bool {
	for _, field := range st.Fields.List {
		if len(field.Names) != 0 {
			continue
		}
		typ := field.Type
		if star, ok := typ.(*ast.StarExpr); ok {
			typ = star.X
		}
		sel, ok := typ.(*ast.SelectorExpr)
		if !ok {
			continue
		}
		if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == alias && sel.Sel.Name == "Tool" {
			return true
		}
	}
	return false
}

// methods indexes method declarations by receiver type and method name.
func (p *fileParser) methods() map[string]map[string]*ast.FuncDecl {
	out := make(map[string]map[string]*ast.FuncDecl)
	for _, decl := range p.ast.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) != 1 {
			continue
		}
		recv := fn.Recv.List[0].Type
		if star, ok := recv.(*ast.StarExpr); ok {
			recv = star.X
		}
		ident, ok := recv.(*ast.Ident)
		if !ok {
			continue
		}
		if out[ident.Name] == nil {
			out[ident.Name] = make(map[string]*ast.FuncDecl)
		}
		out[ident.Name][fn.Name.Name] = fn
	}
	return out
}

// metadata evaluates the literal returned by the metadata method. A missing
// method yields an empty record without error.
func (p *fileParser) metadata(fn *ast.FuncDecl) (map[string]any, []string, error) {
	if fn == nil || fn.Body == nil {
		return nil, nil, nil
	}
	ret := firstReturn(fn.Body)
	if ret == nil || len(ret.Results) != 1 {
		return nil, nil, fmt.Errorf("%w: %s has no single-value return", ErrNonLiteral, toolkit.InfoMethod)
	}
	v, err := evalLiteral(ret.Results[0])
	if err != nil {
		return nil, nil, err
	}
	meta, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s returns %T, not a map", ErrNonLiteral, toolkit.InfoMethod, v)
	}
	return meta, propertyOrder(ret.Results[0]), nil
}

// firstReturn finds the first return statement outside nested function literals.
func firstReturn(body *ast.BlockStmt) *ast.ReturnStmt {
	var found *ast.ReturnStmt
	ast.Inspect(body, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch s := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			found = s
			return false
		}
		return true
	})
	return found
}

func checkEntrySignature(ft *ast.FuncType) error {
	var params []string
	for _, field := range ft.Params.List {
		n := max(len(field.Names), 1)
		for range n {
			params = append(params, types.ExprString(field.Type))
		}
	}
	if len(params) != 2 || !isObjectType(params[0]) || !isObjectType(params[1]) {
		return fmt.Errorf("%s must take (map[string]any, map[string]any), got (%s)",
			toolkit.EntryMethod, strings.Join(params, ", "))
	}

	var results []string
	if ft.Results != nil {
		for _, field := range ft.Results.List {
			n := max(len(field.Names), 1)
			for range n {
				results = append(results, types.ExprString(field.Type))
			}
		}
	}
	if len(results) != 2 || !isAnyType(results[0]) || results[1] != "error" {
		return fmt.Errorf("%s must return (any, error), got (%s)",
			toolkit.EntryMethod, strings.Join(results, ", "))
	}
	return nil
}

func isObjectType(s string) bool {
	return s == "map[string]any" || s == "map[string]interface{}"
}

func isAnyType(s string) bool {
	return s == "any" || s == "interface{}"
}

func (p *fileParser) span(from, to token.Pos) string {
	start := p.fset.Position(from).Offset
	end := p.fset.Position(to).Offset
	if start < 0 || end > len(p.src) || start > end {
		return ""
	}
	return string(p.src[start:end])
}

func (p *fileParser) results(ft *ast.FuncType) string {
	if ft.Results == nil {
		return ""
	}
	if ft.Results.Opening.IsValid() {
		return p.span(ft.Results.Opening, ft.Results.Closing+1)
	}
	return p.span(ft.Results.Pos(), ft.Results.End())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
