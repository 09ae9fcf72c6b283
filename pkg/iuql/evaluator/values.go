package evaluator

import (
	"fmt"
	"reflect"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	"github.com/sambeau/iuql/pkg/iuql/capability"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/filter"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/version"
)

// Versioned is implemented by values latest() can group.
type Versioned interface {
	GetID() string
	GetVersion() version.Version
}

// Keyed values compare equal, and deduplicate in a Set, by their key.
type Keyed interface {
	Key() any
}

// Matcher values are the right-hand side of 'candidate ~= matcher'.
type Matcher interface {
	IsMatch(candidate any) bool
}

// MemberProvider resolves member names without reflection. It is
// authoritative: a name it does not know is undefined.
type MemberProvider interface {
	Member(name string) (any, bool)
}

// PropertyGetter reads one entry of a property bag. When the left side
// of an index is x.properties and x is a PropertyGetter, x[key] is read
// directly instead of materializing the property map.
type PropertyGetter interface {
	Property(key string) (any, bool)
}

// normalize folds Go numeric kinds into int64 and float64, the only
// numbers the evaluator works with.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, string, float64:
		return v
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// typeName describes the type of a value for error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64:
		return "integer"
	case float64:
		return "number"
	case string:
		return "string"
	case version.Version:
		return "version"
	case version.Range:
		return "version range"
	case *ast.Pattern:
		return "pattern"
	case *filter.Filter:
		return "filter"
	case *Set:
		return "set"
	case *capability.Index:
		return "capability index"
	case reflect.Type:
		return "class"
	case iterator.Iterator, iterator.Iterable:
		return "collection"
	}
	return reflect.TypeOf(v).String()
}

// stringify renders a value for lexical comparison.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// asIterator returns an iterator over v or a type error naming the
// operation that needed one.
func asIterator(v any, operation string) (iterator.Iterator, error) {
	if it, ok := iterator.Create(v); ok {
		return it, nil
	}
	return nil, perrors.New("TYPE-0003", map[string]any{"Function": operation, "Got": typeName(v)})
}

// asBool returns v as a boolean or a type error naming the operator.
func asBool(v any, operator string) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, perrors.New("TYPE-0002", map[string]any{"Operator": operator, "Got": typeName(v)})
}

// collect drains an iterable value into a slice. A non-iterable value is
// returned as a one-element slice.
func collect(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	}
	it, ok := iterator.Create(v)
	if !ok {
		return []any{v}, nil
	}
	return iterator.Collect(it)
}
