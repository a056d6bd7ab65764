package catalog

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"
)

// evalLiteral converts a constant Go expression into a JSON-shaped value.
// Accepted: composite literals of maps with string keys and of slices or
// arrays (inner literals may elide their type), basic literals, true, false,
// nil, unary plus/minus and parentheses. Anything else is ErrNonLiteral.
func evalLiteral(expr ast.Expr) (any, error) {
	return evalTyped(expr, nil)
}

// evalTyped evaluates expr; elem is the element type inherited from an
// enclosing composite literal and is used when expr elides its type.
func evalTyped(expr ast.Expr, elem ast.Expr) (any, error) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return evalTyped(e.X, elem)

	case *ast.BasicLit:
		return basicLit(e)

	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		return nil, fmt.Errorf("%w: identifier %s", ErrNonLiteral, e.Name)

	case *ast.UnaryExpr:
		v, err := evalTyped(e.X, elem)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case token.ADD:
			if isNumber(v) {
				return v, nil
			}
		case token.SUB:
			switch n := v.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
		}
		return nil, fmt.Errorf("%w: unary %s", ErrNonLiteral, e.Op)

	case *ast.CompositeLit:
		typ := e.Type
		if typ == nil {
			typ = elem
		}
		return compositeLit(e, typ)
	}
	return nil, fmt.Errorf("%w: %T", ErrNonLiteral, expr)
}

func compositeLit(lit *ast.CompositeLit, typ ast.Expr) (any, error) {
	switch t := typ.(type) {
	case *ast.MapType:
		out := make(map[string]any, len(lit.Elts))
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, fmt.Errorf("%w: map element without key", ErrNonLiteral)
			}
			k, err := evalTyped(kv.Key, t.Key)
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: map key %v is not a string", ErrNonLiteral, k)
			}
			v, err := evalTyped(kv.Value, t.Value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil

	case *ast.ArrayType:
		out := make([]any, 0, len(lit.Elts))
		for _, elt := range lit.Elts {
			if _, ok := elt.(*ast.KeyValueExpr); ok {
				return nil, fmt.Errorf("%w: indexed slice element", ErrNonLiteral)
			}
			v, err := evalTyped(elt, t.Elt)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case nil:
		return nil, fmt.Errorf("%w: composite literal without type", ErrNonLiteral)
	}
	return nil, fmt.Errorf("%w: composite literal of type %T", ErrNonLiteral, typ)
}

func basicLit(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNonLiteral, err)
		}
		return s, nil
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.ReplaceAll(lit.Value, "_", ""), 64)
			if ferr != nil {
				return nil, fmt.Errorf("%w: %v", ErrNonLiteral, err)
			}
			return f, nil
		}
		return n, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(strings.ReplaceAll(lit.Value, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNonLiteral, err)
		}
		return f, nil
	case token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		if err != nil || len([]rune(s)) != 1 {
			return nil, fmt.Errorf("%w: bad rune literal %s", ErrNonLiteral, lit.Value)
		}
		return int64([]rune(s)[0]), nil
	}
	return nil, fmt.Errorf("%w: %s literal", ErrNonLiteral, lit.Kind)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

// propertyOrder returns the keys of parameters.properties in source order.
// Evaluated maps lose their key order, so it is read from the syntax tree.
func propertyOrder(expr ast.Expr) []string {
	lit := unparen(expr)
	if fn := mapValue(lit, "function"); fn != nil {
		lit = fn
	}
	props := mapValue(mapValue(lit, "parameters"), "properties")
	if props == nil {
		return nil
	}
	var keys []string
	for _, elt := range props.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if k, err := evalLiteral(kv.Key); err == nil {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
	}
	return keys
}

// mapValue returns the composite literal stored under key in lit.
func mapValue(lit *ast.CompositeLit, key string) *ast.CompositeLit {
	if lit == nil {
		return nil
	}
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		k, err := evalLiteral(kv.Key)
		if err != nil || k != key {
			continue
		}
		return unparen(kv.Value)
	}
	return nil
}

func unparen(expr ast.Expr) *ast.CompositeLit {
	for {
		p, ok := expr.(*ast.ParenExpr)
		if !ok {
			break
		}
		expr = p.X
	}
	lit, _ := expr.(*ast.CompositeLit)
	return lit
}
