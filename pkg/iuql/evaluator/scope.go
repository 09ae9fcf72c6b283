package evaluator

import "github.com/sambeau/iuql/pkg/iuql/ast"

type binding struct {
	variable *ast.Variable
	value    any
}

// Scope binds variables to values. Scopes form a chain through their
// parent; a lookup walks outwards until the variable is found. Each scope
// has a dedicated slot for one each-variable and one item, which covers
// the bindings made in per-element loops without touching the slice.
type Scope struct {
	parent *Scope

	each      *ast.Variable
	eachValue any

	hasItem bool
	item    any

	vars []binding
}

// NewScope creates an empty root scope.
func NewScope() *Scope {
	return &Scope{}
}

// NewEnclosedScope creates a scope whose lookups fall back to outer.
func NewEnclosedScope(outer *Scope) *Scope {
	return &Scope{parent: outer}
}

// Bind binds v to value in this scope, replacing an earlier binding of v
// made in the same scope.
func (s *Scope) Bind(v *ast.Variable, value any) {
	switch {
	case v == ast.Item:
		s.hasItem, s.item = true, value
		return
	case v.Kind == ast.KindEach && (s.each == nil || s.each == v):
		s.each, s.eachValue = v, value
		return
	}
	for i := range s.vars {
		if s.vars[i].variable == v {
			s.vars[i].value = value
			return
		}
	}
	s.vars = append(s.vars, binding{variable: v, value: value})
}

// Lookup returns the value bound to v in this scope or an enclosing one.
func (s *Scope) Lookup(v *ast.Variable) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v == ast.Item {
			if sc.hasItem {
				return sc.item, true
			}
			continue
		}
		if sc.each == v {
			return sc.eachValue, true
		}
		for i := range sc.vars {
			if sc.vars[i].variable == v {
				return sc.vars[i].value, true
			}
		}
	}
	return nil, false
}
