// Package evaluator walks parsed IU queries against a candidate source.
//
// Predicates (rooted at item) evaluate once per candidate to a boolean;
// queries (rooted at everything) evaluate once against the whole source,
// usually to a lazy iterator. Values are plain Go values: nil, bool,
// int64, float64, string, patterns, versions and ranges, filters, sets,
// iterators, slices, maps and opaque records.
package evaluator

import (
	"reflect"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
)

// Context is what a top-level evaluation runs against. It is not
// modified by evaluation.
type Context struct {
	// Source supplies the candidates a query's everything iterates over:
	// an iterator.Iterator, an iterator.Iterable or a slice.
	Source any

	// InstanceType, when set, restricts the source to values assignable
	// to it, or implementing it when it is an interface type.
	InstanceType reflect.Type

	Parameters []any          // $0, $1, ...
	Named      map[string]any // $name

	// Factory builds the values of string-argument constructors. Nil
	// means DefaultFactory.
	Factory Factory

	Logger *log.Logger
}

func (ctx *Context) factory() Factory {
	if ctx.Factory != nil {
		return ctx.Factory
	}
	return defaultFactory
}

// Evaluate evaluates expr. A nil ctx or scope is treated as empty.
func Evaluate(expr ast.Expression, ctx *Context, scope *Scope) (any, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	if scope == nil {
		scope = NewScope()
	}
	return eval(expr, ctx, scope)
}

// EvaluateAsIterator evaluates expr and returns its result as an
// iterator. Null yields nothing and any other non-iterable value is
// yielded on its own.
func EvaluateAsIterator(expr ast.Expression, ctx *Context, scope *Scope) (iterator.Iterator, error) {
	v, err := Evaluate(expr, ctx, scope)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return iterator.Empty(), nil
	}
	if it, ok := iterator.Create(v); ok {
		return it, nil
	}
	return iterator.Single(v), nil
}

// Match evaluates a predicate with item bound to candidate.
func Match(expr ast.Expression, ctx *Context, candidate any) (bool, error) {
	scope := NewScope()
	scope.Bind(ast.Item, candidate)
	v, err := Evaluate(expr, ctx, scope)
	if err != nil {
		return false, err
	}
	return asBool(v, "predicate")
}

func eval(node ast.Expression, ctx *Context, scope *Scope) (any, error) {
	switch node := node.(type) {

	// Roots
	case *ast.ContextExpression:
		return evalContextExpression(node, ctx, scope)

	case *ast.ItemExpression:
		return eval(node.Body, ctx, scope)

	// Leaves
	case *ast.Literal:
		return node.Value, nil

	case *ast.PatternLiteral:
		return node.Pattern, nil

	case *ast.ArrayLiteral:
		out := make([]any, len(node.Elements))
		for i, e := range node.Elements {
			v, err := eval(e, ctx, scope)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *ast.Parameter:
		return evalParameter(node, ctx)

	case *ast.VariableReference:
		v, ok := scope.Lookup(node.Variable)
		if !ok {
			return nil, perrors.New("UNDEF-0002", map[string]any{"Name": node.Variable.Name})
		}
		if r, ok := v.(iterator.Repeatable); ok {
			return r.Copy(), nil
		}
		return v, nil

	// Access
	case *ast.Member:
		return evalMember(node, ctx, scope)

	case *ast.Index:
		return evalIndex(node, ctx, scope)

	// Operators
	case *ast.Not:
		v, err := eval(node.Operand, ctx, scope)
		if err != nil {
			return nil, err
		}
		b, err := asBool(v, "!")
		if err != nil {
			return nil, err
		}
		return !b, nil

	case *ast.Comparison:
		return evalComparison(node, ctx, scope)

	case *ast.And:
		return evalAnd(node, ctx, scope)

	case *ast.Or:
		return evalOr(node, ctx, scope)

	case *ast.Condition:
		v, err := eval(node.Test, ctx, scope)
		if err != nil {
			return nil, err
		}
		b, err := asBool(v, "?:")
		if err != nil {
			return nil, err
		}
		if b {
			return eval(node.IfTrue, ctx, scope)
		}
		return eval(node.IfFalse, ctx, scope)

	// Collections
	case *ast.Filter:
		return evalFilter(node, ctx, scope)

	case *ast.CapabilityQuery:
		return evalCapabilityQuery(node, ctx, scope)

	case *ast.Constructor:
		return evalConstructor(node, ctx, scope)

	case *ast.Lambda:
		return nil, perrors.NewSimple(perrors.ClassType, "a lambda can only be used as a collection filter argument")
	}

	return nil, perrors.NewSimple(perrors.ClassType, "unknown expression "+reflect.TypeOf(node).String())
}

func evalContextExpression(node *ast.ContextExpression, ctx *Context, scope *Scope) (any, error) {
	src := sourceOf(ctx)

	var everything any
	if ast.CountEverything(node.Body) > 1 {
		r, ok := iterator.Repeat(src)
		if !ok {
			return nil, perrors.New("TYPE-0003", map[string]any{"Function": ast.Everything.Name, "Got": typeName(src)})
		}
		if ctx.Logger != nil {
			ctx.Logger.Debug("everything is referenced more than once", "source", typeName(src))
		}
		everything = r
	} else {
		it, err := asIterator(src, ast.Everything.Name)
		if err != nil {
			return nil, err
		}
		everything = it
	}

	inner := NewEnclosedScope(scope)
	inner.Bind(ast.Everything, everything)
	return eval(node.Body, ctx, inner)
}

// sourceOf returns the context source, restricted to InstanceType.
func sourceOf(ctx *Context) any {
	if ctx.Source == nil {
		return iterator.Empty()
	}
	if ctx.InstanceType == nil {
		return ctx.Source
	}
	f := &instanceFilter{source: ctx.Source, t: ctx.InstanceType}
	if _, oneShot := ctx.Source.(iterator.Iterator); oneShot {
		return f.Iterator()
	}
	return f
}

// instanceFilter is a source restricted to one type. It stays
// re-iterable when the source is.
type instanceFilter struct {
	source any
	t      reflect.Type
}

func (f *instanceFilter) Iterator() iterator.Iterator {
	src, ok := iterator.Create(f.source)
	if !ok {
		return iterator.Empty()
	}
	return iterator.Func(func() (any, error) {
		for {
			v, err := src.Next()
			if err != nil {
				return nil, err
			}
			if v != nil && f.accepts(reflect.TypeOf(v)) {
				return v, nil
			}
		}
	})
}

func (f *instanceFilter) accepts(t reflect.Type) bool {
	if f.t.Kind() == reflect.Interface {
		return t.Implements(f.t)
	}
	return t.AssignableTo(f.t)
}

func evalParameter(node *ast.Parameter, ctx *Context) (any, error) {
	if node.Name != "" {
		v, ok := ctx.Named[node.Name]
		if !ok {
			return nil, perrors.New("UNDEF-0003", map[string]any{"Name": node.Name})
		}
		return normalize(v), nil
	}
	if node.Index < 0 || node.Index >= len(ctx.Parameters) {
		return nil, perrors.New("UNDEF-0003", map[string]any{"Name": strconv.Itoa(node.Index)})
	}
	return normalize(ctx.Parameters[node.Index]), nil
}

// evalOr is boolean OR when the first operand is a boolean and the
// ordered, deduplicated union of the operands otherwise.
func evalOr(node *ast.Or, ctx *Context, scope *Scope) (any, error) {
	first, err := eval(node.Operands[0], ctx, scope)
	if err != nil {
		return nil, err
	}

	if b, ok := first.(bool); ok {
		if b {
			return true, nil
		}
		for _, operand := range node.Operands[1:] {
			v, err := eval(operand, ctx, scope)
			if err != nil {
				return nil, err
			}
			b, err := asBool(v, "||")
			if err != nil {
				return nil, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil
	}

	current, err := setOperand(first, "||")
	if err != nil {
		return nil, err
	}
	seen := NewSet()
	next := 1
	return iterator.Func(func() (any, error) {
		for {
			v, err := current.Next()
			if err == nil {
				if seen.Add(v) {
					return v, nil
				}
				continue
			}
			if err != iterator.Done {
				return nil, err
			}
			if next >= len(node.Operands) {
				return nil, iterator.Done
			}
			ov, err := eval(node.Operands[next], ctx, scope)
			if err != nil {
				return nil, err
			}
			next++
			if current, err = setOperand(ov, "||"); err != nil {
				return nil, err
			}
		}
	}), nil
}

// evalAnd is boolean AND when the first operand is a boolean and the
// intersection of the operands, in the order of the first, otherwise.
func evalAnd(node *ast.And, ctx *Context, scope *Scope) (any, error) {
	first, err := eval(node.Operands[0], ctx, scope)
	if err != nil {
		return nil, err
	}

	if b, ok := first.(bool); ok {
		if !b {
			return false, nil
		}
		for _, operand := range node.Operands[1:] {
			v, err := eval(operand, ctx, scope)
			if err != nil {
				return nil, err
			}
			b, err := asBool(v, "&&")
			if err != nil {
				return nil, err
			}
			if !b {
				return false, nil
			}
		}
		return true, nil
	}

	src, err := setOperand(first, "&&")
	if err != nil {
		return nil, err
	}
	others := make([]*Set, 0, len(node.Operands)-1)
	for _, operand := range node.Operands[1:] {
		v, err := eval(operand, ctx, scope)
		if err != nil {
			return nil, err
		}
		it, err := setOperand(v, "&&")
		if err != nil {
			return nil, err
		}
		items, err := iterator.Collect(it)
		if err != nil {
			return nil, err
		}
		others = append(others, NewSet(items...))
	}

	seen := NewSet()
	return iterator.Func(func() (any, error) {
	next:
		for {
			v, err := src.Next()
			if err != nil {
				return nil, err
			}
			for _, s := range others {
				if !s.Contains(v) {
					continue next
				}
			}
			if seen.Add(v) {
				return v, nil
			}
		}
	}), nil
}

func setOperand(v any, operator string) (iterator.Iterator, error) {
	if _, ok := v.(bool); !ok {
		if it, ok := iterator.Create(v); ok {
			return it, nil
		}
	}
	return nil, perrors.New("TYPE-0007", map[string]any{"Operator": operator, "Got": typeName(v)})
}
