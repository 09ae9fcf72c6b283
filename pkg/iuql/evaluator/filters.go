package evaluator

import (
	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
)

// lambda is a lambda ready to run: curried parameters are bound once in
// prolog, and every call binds the element in a fresh child of it.
type lambda struct {
	node   *ast.Lambda
	ctx    *Context
	prolog *Scope
}

func prepareLambda(node *ast.Lambda, ctx *Context, scope *Scope) (*lambda, error) {
	if len(node.Currying) == 0 {
		return &lambda{node: node, ctx: ctx, prolog: scope}, nil
	}
	prolog := NewEnclosedScope(scope)
	for i, c := range node.Currying {
		if c == nil {
			continue
		}
		v, err := eval(c, ctx, scope)
		if err != nil {
			return nil, err
		}
		prolog.Bind(node.Params[i], v)
	}
	return &lambda{node: node, ctx: ctx, prolog: prolog}, nil
}

func (l *lambda) apply(element any) (any, error) {
	scope := NewEnclosedScope(l.prolog)
	scope.Bind(l.node.Each, element)
	return eval(l.node.Body, l.ctx, scope)
}

func (l *lambda) test(element any, filter ast.FilterKind) (bool, error) {
	v, err := l.apply(element)
	if err != nil {
		return false, err
	}
	return asBool(v, filter.String())
}

func evalFilter(node *ast.Filter, ctx *Context, scope *Scope) (any, error) {
	// select(...).latest() runs the selection inside the grouping pass.
	if node.Kind == ast.FilterLatest {
		if sel, ok := node.Operand.(*ast.Filter); ok && sel.Kind == ast.FilterSelect {
			return evalLatest(sel.Operand, sel.Lambda, ctx, scope)
		}
		return evalLatest(node.Operand, nil, ctx, scope)
	}

	operand, err := eval(node.Operand, ctx, scope)
	if err != nil {
		return nil, err
	}
	src, err := asIterator(operand, node.Kind.String())
	if err != nil {
		return nil, err
	}

	var fn *lambda
	if node.Lambda != nil {
		if fn, err = prepareLambda(node.Lambda, ctx, scope); err != nil {
			return nil, err
		}
	}

	switch node.Kind {
	case ast.FilterSelect:
		return selectIterator(src, fn, true), nil
	case ast.FilterReject:
		return selectIterator(src, fn, false), nil
	case ast.FilterCollect:
		return collectIterator(src, fn), nil
	case ast.FilterExists:
		return exists(src, fn)
	case ast.FilterAll:
		return all(src, fn)
	case ast.FilterFirst:
		return first(src, fn)
	case ast.FilterFlatten:
		return flattenIterator(src), nil
	case ast.FilterLimit:
		return evalLimit(node, src, ctx, scope)
	case ast.FilterUnique:
		return evalUnique(node, src, ctx, scope)
	case ast.FilterTraverse:
		return traverseIterator(src, fn), nil
	}
	return nil, perrors.NewSimple(perrors.ClassType, "unsupported filter "+node.Kind.String())
}

// selectIterator yields the elements for which fn returns keep.
func selectIterator(src iterator.Iterator, fn *lambda, keep bool) iterator.Iterator {
	kind := ast.FilterSelect
	if !keep {
		kind = ast.FilterReject
	}
	return iterator.Func(func() (any, error) {
		for {
			v, err := src.Next()
			if err != nil {
				return nil, err
			}
			ok, err := fn.test(v, kind)
			if err != nil {
				return nil, err
			}
			if ok == keep {
				return v, nil
			}
		}
	})
}

func collectIterator(src iterator.Iterator, fn *lambda) iterator.Iterator {
	return iterator.Func(func() (any, error) {
		v, err := src.Next()
		if err != nil {
			return nil, err
		}
		return fn.apply(v)
	})
}

func exists(src iterator.Iterator, fn *lambda) (any, error) {
	for {
		v, err := src.Next()
		if err == iterator.Done {
			return false, nil
		}
		if err != nil {
			return nil, err
		}
		ok, err := fn.test(v, ast.FilterExists)
		if err != nil {
			return nil, err
		}
		if ok {
			return true, nil
		}
	}
}

func all(src iterator.Iterator, fn *lambda) (any, error) {
	for {
		v, err := src.Next()
		if err == iterator.Done {
			return true, nil
		}
		if err != nil {
			return nil, err
		}
		ok, err := fn.test(v, ast.FilterAll)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
	}
}

func first(src iterator.Iterator, fn *lambda) (any, error) {
	for {
		v, err := src.Next()
		if err == iterator.Done {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		ok, err := fn.test(v, ast.FilterFirst)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
}

// flattenIterator yields the elements of each iterable element; other
// elements are yielded as they are.
func flattenIterator(src iterator.Iterator) iterator.Iterator {
	var inner iterator.Iterator
	return iterator.Func(func() (any, error) {
		for {
			if inner != nil {
				v, err := inner.Next()
				if err != iterator.Done {
					return v, err
				}
				inner = nil
			}
			v, err := src.Next()
			if err != nil {
				return nil, err
			}
			if it, ok := iterator.Create(v); ok {
				inner = it
				continue
			}
			return v, nil
		}
	})
}

func evalLimit(node *ast.Filter, src iterator.Iterator, ctx *Context, scope *Scope) (any, error) {
	arg, err := eval(node.Arg, ctx, scope)
	if err != nil {
		return nil, err
	}
	n, ok := normalize(arg).(int64)
	if !ok || n <= 0 {
		return nil, perrors.New("ARG-0001", nil)
	}

	return iterator.Func(func() (any, error) {
		if n <= 0 {
			return nil, iterator.Done
		}
		n--
		return src.Next()
	}), nil
}

func evalUnique(node *ast.Filter, src iterator.Iterator, ctx *Context, scope *Scope) (any, error) {
	seen := NewSet()
	if node.Arg != nil {
		arg, err := eval(node.Arg, ctx, scope)
		if err != nil {
			return nil, err
		}
		s, ok := arg.(*Set)
		if !ok {
			return nil, perrors.New("ARG-0002", map[string]any{"Got": typeName(arg)})
		}
		seen = s
	}

	return iterator.Func(func() (any, error) {
		for {
			v, err := src.Next()
			if err != nil {
				return nil, err
			}
			if seen.Add(v) {
				return v, nil
			}
		}
	}), nil
}

// traverseIterator walks the graph reachable from the elements of src,
// where fn maps an element to its successors. Elements are produced in
// depth-first preorder and each at most once.
func traverseIterator(src iterator.Iterator, fn *lambda) iterator.Iterator {
	visited := NewSet()
	stack := []iterator.Iterator{src}
	return iterator.Func(func() (any, error) {
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			v, err := top.Next()
			if err == iterator.Done {
				stack = stack[:len(stack)-1]
				continue
			}
			if err != nil {
				return nil, err
			}
			if !visited.Add(v) {
				continue
			}
			next, err := fn.apply(v)
			if err != nil {
				return nil, err
			}
			if next != nil {
				it, err := asIterator(next, ast.FilterTraverse.String())
				if err != nil {
					return nil, err
				}
				stack = append(stack, it)
			}
			return v, nil
		}
		return nil, iterator.Done
	})
}

// evalLatest keeps, per id, the element with the highest version. When
// pred is set, only elements satisfying it take part. Ids are reported in
// the order they were first seen.
func evalLatest(operand ast.Expression, pred *ast.Lambda, ctx *Context, scope *Scope) (any, error) {
	v, err := eval(operand, ctx, scope)
	if err != nil {
		return nil, err
	}
	src, err := asIterator(v, ast.FilterLatest.String())
	if err != nil {
		return nil, err
	}

	var fn *lambda
	if pred != nil {
		if fn, err = prepareLambda(pred, ctx, scope); err != nil {
			return nil, err
		}
	}

	best := make(map[string]Versioned)
	var order []string
	for {
		e, err := src.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if fn != nil {
			ok, err := fn.test(e, ast.FilterSelect)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		item, ok := e.(Versioned)
		if !ok {
			return nil, perrors.New("ARG-0004", map[string]any{"Got": typeName(e)})
		}
		id := item.GetID()
		prev, seen := best[id]
		if !seen {
			order = append(order, id)
			best[id] = item
			continue
		}
		if item.GetVersion().Compare(prev.GetVersion()) > 0 {
			best[id] = item
		}
	}

	out := make([]any, len(order))
	for i, id := range order {
		out[i] = best[id]
	}
	return iterator.FromSlice(out), nil
}
