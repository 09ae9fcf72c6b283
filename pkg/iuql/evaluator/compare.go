package evaluator

import (
	"reflect"
	"strings"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/filter"
	"github.com/sambeau/iuql/pkg/iuql/version"
)

func evalComparison(node *ast.Comparison, ctx *Context, scope *Scope) (any, error) {
	left, err := eval(node.Left, ctx, scope)
	if err != nil {
		return nil, err
	}
	right, err := eval(node.Right, ctx, scope)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case ast.OpEquals:
		return equals(left, right), nil
	case ast.OpNotEquals:
		return !equals(left, right), nil
	case ast.OpMatches:
		return matches(left, right)
	}

	c, err := compare(left, right)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case ast.OpLess:
		return c < 0, nil
	case ast.OpLessEqual:
		return c <= 0, nil
	case ast.OpGreater:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

// equals is the '==' relation. Null equals only null; keyed values compare
// by key; ordered values are coerced as for compare; anything else falls
// back to Go equality for same-typed values and to text otherwise.
func equals(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ka, ok := a.(Keyed); ok {
		if kb, ok := b.(Keyed); ok {
			return ka.Key() == kb.Key()
		}
	}
	if fa, ok := a.(*filter.Filter); ok {
		if fb, ok := b.(*filter.Filter); ok {
			return fa.Equal(fb)
		}
	}

	if c, ok, err := coerce(a, b); ok {
		return err == nil && c == 0
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == tb {
		if ta.Comparable() {
			return a == b
		}
		return reflect.DeepEqual(a, b)
	}
	return stringify(a) == stringify(b)
}

// compare orders two values for '<', '<=', '>' and '>='.
func compare(a, b any) (int, error) {
	a, b = normalize(a), normalize(b)
	c, ok, err := coerce(a, b)
	if !ok || err != nil {
		return 0, perrors.New("TYPE-0001", map[string]any{"Left": typeName(a), "Right": typeName(b)})
	}
	return c, nil
}

func ordered(v any) bool {
	switch v.(type) {
	case bool, int64, float64, string, version.Version:
		return true
	}
	return false
}

// coerce compares two totally ordered values. Versions and strings parse
// into each other and numbers compare numerically; any other mixed pair,
// a number and a string included, is compared as text. ok is false when
// either value is not ordered.
func coerce(a, b any) (c int, ok bool, err error) {
	if !ordered(a) || !ordered(b) {
		return 0, false, nil
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpInt(x, y), true, nil
		case float64:
			return cmpFloat(float64(x), y), true, nil
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpFloat(x, y), true, nil
		case int64:
			return cmpFloat(x, float64(y)), true, nil
		}
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), true, nil
		case version.Version:
			v, perr := version.Parse(x)
			if perr != nil {
				return 0, true, perr
			}
			return v.Compare(y), true, nil
		}
	case version.Version:
		switch y := b.(type) {
		case version.Version:
			return x.Compare(y), true, nil
		case string:
			v, perr := version.Parse(y)
			if perr != nil {
				return 0, true, perr
			}
			return x.Compare(v), true, nil
		}
	case bool:
		if y, isBool := b.(bool); isBool {
			switch {
			case x == y:
				return 0, true, nil
			case !x:
				return -1, true, nil
			}
			return 1, true, nil
		}
	}
	return strings.Compare(stringify(a), stringify(b)), true, nil
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// matches is the '~=' relation.
func matches(a, b any) (bool, error) {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}

	switch m := b.(type) {
	case version.Range:
		switch x := a.(type) {
		case version.Version:
			return m.Includes(x), nil
		case string:
			v, err := version.Parse(x)
			if err != nil {
				return false, nil
			}
			return m.Includes(v), nil
		}
		return false, nil

	case *ast.Pattern:
		return m.Match(stringify(a)), nil

	case *filter.Filter:
		return m.Match(a), nil

	case reflect.Type:
		t := reflect.TypeOf(a)
		if m.Kind() == reflect.Interface {
			return t.Implements(m), nil
		}
		return t.AssignableTo(m), nil

	case Matcher:
		return m.IsMatch(a), nil

	case string:
		if v, ok := a.(version.Version); ok {
			r, err := version.ParseRange(m)
			if err != nil {
				return false, perrors.Wrap("CTOR-0001", err, map[string]any{"Name": ast.CtorRange, "Arg": m})
			}
			return r.Includes(v), nil
		}
	}

	return equals(a, b), nil
}
