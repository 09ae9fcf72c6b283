package ast

// VariableKind distinguishes the roles a variable can play.
type VariableKind int

const (
	KindEverything VariableKind = iota // the context query root
	KindItem                           // the item predicate root
	KindEach                           // a lambda's per-element parameter
	KindNamed                          // a curried lambda parameter
)

// Variable is a symbolic slot. It holds no value; values are bound in an
// evaluator scope and looked up by pointer identity, so two variables with
// the same name (a shadowed lambda parameter, say) never collide.
type Variable struct {
	Name string
	Kind VariableKind
}

// The two root variables are process-wide singletons.
var (
	Everything = &Variable{Name: "everything", Kind: KindEverything}
	Item       = &Variable{Name: "item", Kind: KindItem}
)

// NewEach returns a fresh each-variable.
func NewEach(name string) *Variable {
	return &Variable{Name: name, Kind: KindEach}
}

// NewNamed returns a fresh curried parameter variable.
func NewNamed(name string) *Variable {
	return &Variable{Name: name, Kind: KindNamed}
}

func (v *Variable) String() string { return v.Name }
