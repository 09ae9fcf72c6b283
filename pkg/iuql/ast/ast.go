package ast

import (
	"bytes"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sambeau/iuql/pkg/iuql/lexer"
)

// Printing priorities. A lower value binds tighter; String() wraps an
// operand in parentheses when its priority is too loose for its position.
const (
	PriorityVariable = iota
	PriorityLiteral
	PriorityConstructor
	PriorityMember
	PriorityFunction
	PriorityNot
	PriorityBinary
	PriorityAnd
	PriorityOr
	PriorityCondition
	PriorityLambda
)

// Node represents any node in the AST
type Node interface {
	TokenLiteral() string
	String() string
	Priority() int
}

// Expression represents expression nodes
type Expression interface {
	Node
	expressionNode()
}

// operand renders e, adding parentheses when its priority exceeds max.
func operand(out *bytes.Buffer, e Expression, max int) {
	if e.Priority() > max {
		out.WriteByte('(')
		out.WriteString(e.String())
		out.WriteByte(')')
		return
	}
	out.WriteString(e.String())
}

func writeList(out *bytes.Buffer, exprs []Expression) {
	for i, e := range exprs {
		if i > 0 {
			out.WriteString(", ")
		}
		operand(out, e, PriorityCondition)
	}
}

// ContextExpression is the root of a context query. It binds the
// candidate source to Everything before evaluating Body.
type ContextExpression struct {
	Body Expression
}

func (ce *ContextExpression) expressionNode()      {}
func (ce *ContextExpression) TokenLiteral() string { return ce.Body.TokenLiteral() }
func (ce *ContextExpression) String() string       { return ce.Body.String() }
func (ce *ContextExpression) Priority() int        { return ce.Body.Priority() }

// ItemExpression is the root of an item predicate. It binds the
// candidate to Item before evaluating Body.
type ItemExpression struct {
	Body Expression
}

func (ie *ItemExpression) expressionNode()      {}
func (ie *ItemExpression) TokenLiteral() string { return ie.Body.TokenLiteral() }
func (ie *ItemExpression) String() string       { return ie.Body.String() }
func (ie *ItemExpression) Priority() int        { return ie.Body.Priority() }

// Literal is a null, boolean, integer or string constant.
type Literal struct {
	Token lexer.Token
	Value any // nil, bool, int64 or string
}

// True is the literal an empty predicate parses to.
var True = &Literal{Token: lexer.Token{Type: lexer.TRUE, Literal: "true"}, Value: true}

func (l *Literal) expressionNode()      {}
func (l *Literal) TokenLiteral() string { return l.Token.Literal }
func (l *Literal) Priority() int        { return PriorityLiteral }
func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return Quote(v)
	}
	return "null"
}

// Quote renders s as a string literal. Strings have no escapes, so a
// string holding a single quote is rendered with double quotes.
func Quote(s string) string {
	if strings.ContainsRune(s, '\'') {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}

// PatternLiteral is a /glob/ pattern constant.
type PatternLiteral struct {
	Token   lexer.Token
	Pattern *Pattern
}

func (pl *PatternLiteral) expressionNode()      {}
func (pl *PatternLiteral) TokenLiteral() string { return pl.Token.Literal }
func (pl *PatternLiteral) Priority() int        { return PriorityLiteral }
func (pl *PatternLiteral) String() string       { return pl.Pattern.String() }

// ArrayLiteral is [a, b, ...].
type ArrayLiteral struct {
	Token    lexer.Token // the '[' token
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) Priority() int        { return PriorityLiteral }
func (al *ArrayLiteral) String() string {
	var out bytes.Buffer
	out.WriteByte('[')
	writeList(&out, al.Elements)
	out.WriteByte(']')
	return out.String()
}

// Parameter is $0 (positional) or $name (named).
type Parameter struct {
	Token lexer.Token // the '$' token
	Index int
	Name  string // empty for positional parameters
}

func (p *Parameter) expressionNode()      {}
func (p *Parameter) TokenLiteral() string { return p.Token.Literal }
func (p *Parameter) Priority() int        { return PriorityVariable }
func (p *Parameter) String() string {
	if p.Name != "" {
		return "$" + p.Name
	}
	return "$" + strconv.Itoa(p.Index)
}

// VariableReference is an occurrence of a variable in the tree.
type VariableReference struct {
	Token    lexer.Token
	Variable *Variable
}

func (vr *VariableReference) expressionNode()      {}
func (vr *VariableReference) TokenLiteral() string { return vr.Token.Literal }
func (vr *VariableReference) Priority() int        { return PriorityVariable }
func (vr *VariableReference) String() string       { return vr.Variable.Name }

// Member is operand.name. Resolved accessors are cached per concrete
// operand type.
type Member struct {
	Token     lexer.Token // the member name token
	Operand   Expression
	Name      string
	accessors sync.Map // reflect.Type -> accessor
}

func (m *Member) expressionNode()      {}
func (m *Member) TokenLiteral() string { return m.Token.Literal }
func (m *Member) Priority() int        { return PriorityMember }
func (m *Member) String() string {
	var out bytes.Buffer
	operand(&out, m.Operand, PriorityFunction)
	out.WriteByte('.')
	out.WriteString(m.Name)
	return out.String()
}

// Accessor returns the accessor cached for t, if any.
func (m *Member) Accessor(t reflect.Type) (any, bool) {
	return m.accessors.Load(t)
}

// SetAccessor caches the accessor resolved for t. Concurrent callers may
// both resolve and store; the last store wins.
func (m *Member) SetAccessor(t reflect.Type, accessor any) {
	m.accessors.Store(t, accessor)
}

// Index is operand[key].
type Index struct {
	Token   lexer.Token // the '[' token
	Operand Expression
	Key     Expression
}

func (ix *Index) expressionNode()      {}
func (ix *Index) TokenLiteral() string { return ix.Token.Literal }
func (ix *Index) Priority() int        { return PriorityMember }
func (ix *Index) String() string {
	var out bytes.Buffer
	operand(&out, ix.Operand, PriorityFunction)
	out.WriteByte('[')
	operand(&out, ix.Key, PriorityCondition)
	out.WriteByte(']')
	return out.String()
}

// Not is !operand.
type Not struct {
	Token   lexer.Token // the '!' token
	Operand Expression
}

func (n *Not) expressionNode()      {}
func (n *Not) TokenLiteral() string { return n.Token.Literal }
func (n *Not) Priority() int        { return PriorityNot }
func (n *Not) String() string {
	var out bytes.Buffer
	out.WriteByte('!')
	operand(&out, n.Operand, PriorityNot)
	return out.String()
}

// CompareOp identifies a relational operator.
type CompareOp int

const (
	OpEquals CompareOp = iota
	OpNotEquals
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpMatches
)

var compareOps = [...]string{"==", "!=", "<", "<=", ">", ">=", "~="}

func (op CompareOp) String() string { return compareOps[op] }

// CompareOpFor maps a relational token to its operator.
func CompareOpFor(t lexer.TokenType) (CompareOp, bool) {
	switch t {
	case lexer.EQ:
		return OpEquals, true
	case lexer.NOT_EQ:
		return OpNotEquals, true
	case lexer.LT:
		return OpLess, true
	case lexer.LTE:
		return OpLessEqual, true
	case lexer.GT:
		return OpGreater, true
	case lexer.GTE:
		return OpGreaterEqual, true
	case lexer.MATCHES:
		return OpMatches, true
	}
	return 0, false
}

// Comparison is a non-associative binary relational expression.
type Comparison struct {
	Token lexer.Token // the operator token
	Op    CompareOp
	Left  Expression
	Right Expression
}

func (c *Comparison) expressionNode()      {}
func (c *Comparison) TokenLiteral() string { return c.Token.Literal }
func (c *Comparison) Priority() int        { return PriorityBinary }
func (c *Comparison) String() string {
	var out bytes.Buffer
	operand(&out, c.Left, PriorityNot)
	out.WriteString(" " + c.Op.String() + " ")
	operand(&out, c.Right, PriorityNot)
	return out.String()
}

// And is a && b && ...
type And struct {
	Token    lexer.Token // the first '&&' token
	Operands []Expression
}

func (a *And) expressionNode()      {}
func (a *And) TokenLiteral() string { return a.Token.Literal }
func (a *And) Priority() int        { return PriorityAnd }
func (a *And) String() string {
	var out bytes.Buffer
	for i, e := range a.Operands {
		if i > 0 {
			out.WriteString(" && ")
		}
		operand(&out, e, PriorityBinary)
	}
	return out.String()
}

// Or is a || b || ...
type Or struct {
	Token    lexer.Token // the first '||' token
	Operands []Expression
}

func (o *Or) expressionNode()      {}
func (o *Or) TokenLiteral() string { return o.Token.Literal }
func (o *Or) Priority() int        { return PriorityOr }
func (o *Or) String() string {
	var out bytes.Buffer
	for i, e := range o.Operands {
		if i > 0 {
			out.WriteString(" || ")
		}
		operand(&out, e, PriorityAnd)
	}
	return out.String()
}

// Condition is test ? ifTrue : ifFalse.
type Condition struct {
	Token   lexer.Token // the '?' token
	Test    Expression
	IfTrue  Expression
	IfFalse Expression
}

func (c *Condition) expressionNode()      {}
func (c *Condition) TokenLiteral() string { return c.Token.Literal }
func (c *Condition) Priority() int        { return PriorityCondition }
func (c *Condition) String() string {
	var out bytes.Buffer
	operand(&out, c.Test, PriorityOr)
	out.WriteString(" ? ")
	operand(&out, c.IfTrue, PriorityOr)
	out.WriteString(" : ")
	operand(&out, c.IfFalse, PriorityOr)
	return out.String()
}

// Lambda is the argument of a collection filter. Without currying it has
// exactly one parameter, Each. With currying, Currying has one entry per
// parameter; the entry at the position of Each is nil and the others are
// evaluated once, before the per-element loop.
type Lambda struct {
	Token    lexer.Token
	Params   []*Variable
	Currying []Expression
	Each     *Variable
	Body     Expression
	Implicit bool // written as a bare body using '_'
}

func (l *Lambda) expressionNode()      {}
func (l *Lambda) TokenLiteral() string { return l.Token.Literal }
func (l *Lambda) Priority() int        { return PriorityLambda }
func (l *Lambda) String() string {
	if l.Implicit {
		return l.Body.String()
	}
	var out bytes.Buffer
	if len(l.Currying) == 0 {
		out.WriteString(l.Each.Name)
		out.WriteString(" | ")
		out.WriteString(l.Body.String())
		return out.String()
	}
	for _, c := range l.Currying {
		if c == nil {
			out.WriteString("_")
		} else {
			operand(&out, c, PriorityCondition)
		}
		out.WriteString(", ")
	}
	out.WriteByte('{')
	for i, p := range l.Params {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(p.Name)
	}
	out.WriteString(" | ")
	out.WriteString(l.Body.String())
	out.WriteByte('}')
	return out.String()
}

// FilterKind identifies a collection filter.
type FilterKind int

const (
	FilterSelect FilterKind = iota
	FilterReject
	FilterCollect
	FilterExists
	FilterAll
	FilterFirst
	FilterFlatten
	FilterLatest
	FilterLimit
	FilterUnique
	FilterTraverse
)

func (k FilterKind) String() string { return lexer.FilterNames[k] }

// FilterKindFor maps a filter keyword to its kind.
func FilterKindFor(t lexer.TokenType) (FilterKind, bool) {
	if !t.IsFilter() {
		return 0, false
	}
	return FilterKind(t - lexer.SELECT), true
}

// Filter is operand.kind(...). Lambda is set for the lambda-taking
// filters; Arg holds the limit count or the optional unique cache.
type Filter struct {
	Token   lexer.Token // the filter keyword token
	Kind    FilterKind
	Operand Expression
	Lambda  *Lambda
	Arg     Expression
}

func (f *Filter) expressionNode()      {}
func (f *Filter) TokenLiteral() string { return f.Token.Literal }
func (f *Filter) Priority() int        { return PriorityFunction }
func (f *Filter) String() string {
	var out bytes.Buffer
	operand(&out, f.Operand, PriorityFunction)
	out.WriteByte('.')
	out.WriteString(f.Kind.String())
	out.WriteByte('(')
	switch {
	case f.Lambda != nil:
		out.WriteString(f.Lambda.String())
	case f.Arg != nil:
		operand(&out, f.Arg, PriorityCondition)
	}
	out.WriteByte(')')
	return out.String()
}

// CapabilityQuery is index.satisfiesAny(requirements) or
// index.satisfiesAll(requirements).
type CapabilityQuery struct {
	Token        lexer.Token
	Operand      Expression
	All          bool
	Requirements Expression
}

func (cq *CapabilityQuery) expressionNode()      {}
func (cq *CapabilityQuery) TokenLiteral() string { return cq.Token.Literal }
func (cq *CapabilityQuery) Priority() int        { return PriorityFunction }
func (cq *CapabilityQuery) String() string {
	var out bytes.Buffer
	operand(&out, cq.Operand, PriorityFunction)
	if cq.All {
		out.WriteString(".satisfiesAll(")
	} else {
		out.WriteString(".satisfiesAny(")
	}
	operand(&out, cq.Requirements, PriorityCondition)
	out.WriteByte(')')
	return out.String()
}

// Constructor names.
const (
	CtorVersion           = "version"
	CtorRange             = "range"
	CtorFilter            = "filter"
	CtorClass             = "class"
	CtorSet               = "set"
	CtorCapabilityIndex   = "capabilityIndex"
	CtorLocalizedKeys     = "localizedKeys"
	CtorLocalizedMap      = "localizedMap"
	CtorLocalizedProperty = "localizedProperty"
)

// ConstructorArity maps each constructor name to its argument count; -1
// means any number.
var ConstructorArity = map[string]int{
	CtorVersion:           1,
	CtorRange:             1,
	CtorFilter:            1,
	CtorClass:             1,
	CtorSet:               -1,
	CtorCapabilityIndex:   1,
	CtorLocalizedKeys:     2,
	CtorLocalizedMap:      2,
	CtorLocalizedProperty: 3,
}

var immutableConstructors = map[string]bool{
	CtorVersion: true,
	CtorRange:   true,
	CtorFilter:  true,
	CtorClass:   true,
}

// Constructor is name(args...) for a whitelisted constructor.
type Constructor struct {
	Token lexer.Token // the constructor name token
	Name  string
	Args  []Expression
	memo  atomic.Pointer[memoized]
}

type memoized struct {
	owner any
	value any
}

func (c *Constructor) expressionNode()      {}
func (c *Constructor) TokenLiteral() string { return c.Token.Literal }
func (c *Constructor) Priority() int        { return PriorityConstructor }
func (c *Constructor) String() string {
	var out bytes.Buffer
	out.WriteString(c.Name)
	out.WriteByte('(')
	writeList(&out, c.Args)
	out.WriteByte(')')
	return out.String()
}

// Cacheable reports whether the constructed value may be memoized: the
// constructor is immutable and every argument is a literal.
func (c *Constructor) Cacheable() bool {
	if !immutableConstructors[c.Name] {
		return false
	}
	for _, a := range c.Args {
		if _, ok := a.(*Literal); !ok {
			return false
		}
	}
	return true
}

// Cached returns the value memoized for owner, if any. A value built by
// one owner is never handed to another. owner must be comparable.
func (c *Constructor) Cached(owner any) (any, bool) {
	if m := c.memo.Load(); m != nil && m.owner == owner {
		return m.value, true
	}
	return nil, false
}

// Cache memoizes v as built by owner, replacing any earlier value.
func (c *Constructor) Cache(owner, v any) {
	c.memo.Store(&memoized{owner: owner, value: v})
}
