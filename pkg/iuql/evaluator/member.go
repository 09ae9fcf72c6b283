package evaluator

import (
	"reflect"
	"sort"
	"strings"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type accessorKind int

const (
	accessMethod accessorKind = iota
	accessField
	accessMapKey
	accessNone
)

// accessor is how a member name resolves on one concrete type.
type accessor struct {
	kind   accessorKind
	method int   // method index on the type
	field  []int // field index path, through one pointer
}

func evalMember(node *ast.Member, ctx *Context, scope *Scope) (any, error) {
	target, err := eval(node.Operand, ctx, scope)
	if err != nil {
		return nil, err
	}
	return member(node, target)
}

func member(node *ast.Member, target any) (any, error) {
	if target == nil {
		return nil, perrors.New("TYPE-0005", map[string]any{"Name": node.Name})
	}

	if mp, ok := target.(MemberProvider); ok {
		v, found := mp.Member(node.Name)
		if !found {
			return nil, perrors.NewUndefinedMember(node.Name, typeName(target), nil)
		}
		return normalize(v), nil
	}

	rv := reflect.ValueOf(target)
	t := rv.Type()

	var acc accessor
	if cached, ok := node.Accessor(t); ok {
		acc = cached.(accessor)
	} else {
		acc = resolveAccessor(t, node.Name)
		node.SetAccessor(t, acc)
	}

	switch acc.kind {
	case accessMethod:
		out := rv.Method(acc.method).Call(nil)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return normalize(out[0].Interface()), nil

	case accessField:
		if rv.Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		return normalize(rv.FieldByIndex(acc.field).Interface()), nil

	case accessMapKey:
		v := rv.MapIndex(reflect.ValueOf(node.Name).Convert(t.Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return normalize(v.Interface()), nil
	}

	return nil, perrors.NewUndefinedMember(node.Name, typeName(target), memberNames(t))
}

// resolveAccessor looks name up on t: a Get<Name>, Is<Name> or <Name>
// method, then an exported struct field, then a string map key. Names
// match case-insensitively.
func resolveAccessor(t reflect.Type, name string) accessor {
	for _, prefix := range [...]string{"get", "is", ""} {
		want := prefix + name
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if strings.EqualFold(m.Name, want) && isGetter(m.Type) {
				return accessor{kind: accessMethod, method: i}
			}
		}
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(st) {
			if f.IsExported() && !f.Anonymous && strings.EqualFold(f.Name, name) {
				return accessor{kind: accessField, field: f.Index}
			}
		}
	}

	if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
		return accessor{kind: accessMapKey}
	}
	return accessor{kind: accessNone}
}

// isGetter reports whether a method type, receiver included, takes no
// arguments and returns a value, optionally followed by an error.
func isGetter(mt reflect.Type) bool {
	if mt.NumIn() != 1 {
		return false
	}
	switch mt.NumOut() {
	case 1:
		return true
	case 2:
		return mt.Out(1) == errorType
	}
	return false
}

// memberNames lists the names a type answers to, for "did you mean".
func memberNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !isGetter(m.Type) {
			continue
		}
		name := m.Name
		for _, prefix := range [...]string{"Get", "Is"} {
			if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
				name = name[len(prefix):]
				break
			}
		}
		names = append(names, strings.ToLower(name[:1])+name[1:])
	}
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(st) {
			if f.IsExported() && !f.Anonymous {
				names = append(names, strings.ToLower(f.Name[:1])+f.Name[1:])
			}
		}
	}
	sort.Strings(names)
	return names
}

func evalIndex(node *ast.Index, ctx *Context, scope *Scope) (any, error) {
	// x.properties[key] reads one property when x can serve it directly.
	if m, ok := node.Operand.(*ast.Member); ok && strings.EqualFold(m.Name, "properties") {
		owner, err := eval(m.Operand, ctx, scope)
		if err != nil {
			return nil, err
		}
		key, err := eval(node.Key, ctx, scope)
		if err != nil {
			return nil, err
		}
		if pg, ok := owner.(PropertyGetter); ok {
			if s, ok := key.(string); ok {
				v, _ := pg.Property(s)
				return normalize(v), nil
			}
		}
		target, err := member(m, owner)
		if err != nil {
			return nil, err
		}
		return index(target, key)
	}

	target, err := eval(node.Operand, ctx, scope)
	if err != nil {
		return nil, err
	}
	key, err := eval(node.Key, ctx, scope)
	if err != nil {
		return nil, err
	}
	return index(target, key)
}

func index(target, key any) (any, error) {
	if target == nil {
		return nil, perrors.New("TYPE-0004", map[string]any{"Got": "null"})
	}
	key = normalize(key)

	if pg, ok := target.(PropertyGetter); ok {
		if s, ok := key.(string); ok {
			v, _ := pg.Property(s)
			return normalize(v), nil
		}
	}

	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Map:
		kt := rv.Type().Key()
		var kv reflect.Value
		switch {
		case kt.Kind() == reflect.String:
			kv = reflect.ValueOf(stringify(key))
		case key != nil && reflect.TypeOf(key).ConvertibleTo(kt):
			kv = reflect.ValueOf(key)
		default:
			return nil, perrors.New("TYPE-0006", map[string]any{"Got": typeName(target), "IndexType": typeName(key)})
		}
		v := rv.MapIndex(kv.Convert(kt))
		if !v.IsValid() {
			return nil, nil
		}
		return normalize(v.Interface()), nil

	case reflect.Slice, reflect.Array:
		i, ok := key.(int64)
		if !ok {
			return nil, perrors.New("TYPE-0006", map[string]any{"Got": typeName(target), "IndexType": typeName(key)})
		}
		if i < 0 || i >= int64(rv.Len()) {
			return nil, perrors.New("INDEX-0001", map[string]any{"Index": i, "Length": rv.Len()})
		}
		return normalize(rv.Index(int(i)).Interface()), nil
	}

	return nil, perrors.New("TYPE-0004", map[string]any{"Got": typeName(target)})
}
