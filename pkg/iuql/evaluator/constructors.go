package evaluator

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	"github.com/sambeau/iuql/pkg/iuql/capability"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/filter"
	"github.com/sambeau/iuql/pkg/iuql/metadata"
	"github.com/sambeau/iuql/pkg/iuql/version"
)

// Factory builds the value of a string-argument constructor such as
// version('1.0') or class('InstallableUnit').
type Factory interface {
	Construct(name, arg string) (any, error)
}

// DefaultFactory constructs versions, ranges and filters with the
// reference parsers and resolves class names from Classes.
type DefaultFactory struct {
	mu      sync.RWMutex
	classes map[string]reflect.Type
}

var defaultFactory = NewDefaultFactory()

// NewDefaultFactory returns a factory that knows the metadata record
// types, under their short names and their p2 interface names.
func NewDefaultFactory() *DefaultFactory {
	f := &DefaultFactory{classes: make(map[string]reflect.Type)}
	iu := reflect.TypeOf((*metadata.InstallableUnit)(nil))
	req := reflect.TypeOf((*metadata.Requirement)(nil))
	pc := reflect.TypeOf(metadata.ProvidedCapability{})
	for name, t := range map[string]reflect.Type{
		"InstallableUnit":     iu,
		"IInstallableUnit":    iu,
		"Requirement":         req,
		"IRequirement":        req,
		"ProvidedCapability":  pc,
		"IProvidedCapability": pc,
		"org.eclipse.equinox.p2.metadata.IInstallableUnit":    iu,
		"org.eclipse.equinox.p2.metadata.IRequirement":        req,
		"org.eclipse.equinox.p2.metadata.IProvidedCapability": pc,
	} {
		f.classes[name] = t
	}
	return f
}

// RegisterClass makes class(name) evaluate to t.
func (f *DefaultFactory) RegisterClass(name string, t reflect.Type) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[name] = t
}

// Construct implements Factory.
func (f *DefaultFactory) Construct(name, arg string) (any, error) {
	switch name {
	case ast.CtorVersion:
		return version.Parse(arg)
	case ast.CtorRange:
		return version.ParseRange(arg)
	case ast.CtorFilter:
		return filter.Parse(arg)
	case ast.CtorClass:
		f.mu.RLock()
		t, ok := f.classes[arg]
		f.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown class %q", arg)
		}
		return t, nil
	}
	return nil, perrors.New("CTOR-0002", map[string]any{"Name": name})
}

func evalConstructor(node *ast.Constructor, ctx *Context, scope *Scope) (any, error) {
	factory := ctx.factory()
	memo := node.Cacheable() && reflect.TypeOf(factory).Comparable()
	if memo {
		if v, ok := node.Cached(factory); ok {
			return v, nil
		}
	}

	args := make([]any, len(node.Args))
	for i, a := range node.Args {
		v, err := eval(a, ctx, scope)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch node.Name {
	case ast.CtorSet:
		return NewSet(args...), nil

	case ast.CtorCapabilityIndex:
		src, err := asIterator(args[0], node.Name)
		if err != nil {
			return nil, err
		}
		idx, err := capability.New(src)
		if err != nil {
			return nil, err
		}
		if ctx.Logger != nil {
			ctx.Logger.Debug("built capability index", "units", idx.Len())
		}
		return idx, nil

	case ast.CtorLocalizedKeys:
		return localizedKeys(args[0], args[1])

	case ast.CtorLocalizedMap:
		return localizedMap(ctx, args[0], args[1])

	case ast.CtorLocalizedProperty:
		return localizedProperty(ctx, args[0], args[1], args[2])
	}

	v, err := construct(node.Name, args[0], factory)
	if err != nil {
		return nil, err
	}
	if memo {
		node.Cache(factory, v)
	}
	return v, nil
}

// construct builds a value from a string through the factory. A value
// that already has the constructed type is returned unchanged.
func construct(name string, arg any, factory Factory) (any, error) {
	switch arg.(type) {
	case version.Version:
		if name == ast.CtorVersion {
			return arg, nil
		}
	case version.Range:
		if name == ast.CtorRange {
			return arg, nil
		}
	case *filter.Filter:
		if name == ast.CtorFilter {
			return arg, nil
		}
	case reflect.Type:
		if name == ast.CtorClass {
			return arg, nil
		}
	}

	s, ok := arg.(string)
	if !ok {
		return nil, perrors.New("ARG-0003", map[string]any{"Function": name, "Got": typeName(arg)})
	}
	v, err := factory.Construct(name, s)
	if err != nil {
		var qe *perrors.QueryError
		if errors.As(err, &qe) {
			return nil, qe
		}
		return nil, perrors.Wrap("CTOR-0001", err, map[string]any{"Name": name, "Arg": s})
	}
	return v, nil
}

func evalCapabilityQuery(node *ast.CapabilityQuery, ctx *Context, scope *Scope) (any, error) {
	name := "satisfiesAny"
	if node.All {
		name = "satisfiesAll"
	}

	target, err := eval(node.Operand, ctx, scope)
	if err != nil {
		return nil, err
	}
	idx, ok := target.(*capability.Index)
	if !ok {
		return nil, perrors.New("ARG-0005", map[string]any{"Function": name, "Expected": "a capability index", "Got": typeName(target)})
	}

	v, err := eval(node.Requirements, ctx, scope)
	if err != nil {
		return nil, err
	}
	reqs, err := collect(v)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if _, ok := r.(Matcher); !ok {
			return nil, perrors.New("ARG-0005", map[string]any{"Function": name, "Expected": "requirements", "Got": typeName(r)})
		}
	}

	var units []*metadata.InstallableUnit
	if node.All {
		units, err = idx.SatisfiesAll(reqs)
	} else {
		units, err = idx.SatisfiesAny(reqs)
	}
	if err != nil {
		return nil, err
	}
	return units, nil
}
