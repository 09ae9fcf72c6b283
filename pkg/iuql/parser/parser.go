// Package parser turns IUQL text into an AST.
//
// The parser is a recursive descent with one method per precedence level,
// lowest first: condition, or, and, relational, not, then the postfix
// chain of members, indexes and collection filters, then constructors and
// primaries. A Parser is single-use; the package functions ParsePredicate
// and ParseQuery build a fresh one per call and are safe for concurrent
// use.
package parser

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/lexer"
)

// Parser represents the parser
type Parser struct {
	l *lexer.Lexer

	prevToken lexer.Token
	curToken  lexer.Token
	peekToken lexer.Token

	root  *ast.Variable   // Everything or Item
	scope []*ast.Variable // lambda parameters in scope, innermost last
}

// bailout carries the first parse error up to parse().
type bailout struct {
	err *perrors.QueryError
}

// New creates a new parser instance
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// ParsePredicate parses text as an item predicate rooted at 'item'. An
// empty or blank text parses to the literal true.
func ParsePredicate(text string) (*ast.ItemExpression, error) {
	return New(lexer.New(text)).ParsePredicate()
}

// ParseQuery parses text as a context query rooted at 'everything'.
func ParseQuery(text string) (*ast.ContextExpression, error) {
	return New(lexer.New(text)).ParseQuery()
}

// ParsePredicate parses the lexer input as an item predicate.
func (p *Parser) ParsePredicate() (*ast.ItemExpression, error) {
	if strings.TrimSpace(p.l.Input()) == "" {
		return &ast.ItemExpression{Body: ast.True}, nil
	}
	body, err := p.parse(ast.Item)
	if err != nil {
		return nil, err
	}
	return &ast.ItemExpression{Body: body}, nil
}

// ParseQuery parses the lexer input as a context query.
func (p *Parser) ParseQuery() (*ast.ContextExpression, error) {
	body, err := p.parse(ast.Everything)
	if err != nil {
		return nil, err
	}
	return &ast.ContextExpression{Body: body}, nil
}

// parse parses a whole expression rooted at root. Any failure unwinds
// through a bailout panic so no partial tree escapes.
func (p *Parser) parse(root *ast.Variable) (expr ast.Expression, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			expr, err = nil, b.err
		}
	}()

	p.root = root
	expr = p.parseCondition()
	if !p.curTokenIs(lexer.EOF) {
		p.unexpected(p.curToken)
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes the current token if it has type t and fails otherwise.
func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if !p.curTokenIs(t) {
		p.expectError(t)
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

// ============================================================================
// Errors
// ============================================================================

func (p *Parser) fail(tok lexer.Token, code string, data map[string]any) {
	panic(bailout{err: perrors.NewAt(code, p.l.Input(), tok.Offset, data)})
}

func (p *Parser) failWith(tok lexer.Token, err *perrors.QueryError) {
	err.Query = p.l.Input()
	err.Offset = tok.Offset
	panic(bailout{err: err})
}

// unexpected fails on tok. Lexer errors keep the lexer's own message.
func (p *Parser) unexpected(tok lexer.Token) {
	switch tok.Type {
	case lexer.ILLEGAL:
		p.fail(tok, "PARSE-0013", map[string]any{"Message": tok.Literal})
	case lexer.EOF:
		p.fail(tok, "PARSE-0012", nil)
	}
	p.fail(tok, "PARSE-0002", map[string]any{"Token": tok.Literal})
}

func (p *Parser) expectError(t lexer.TokenType) {
	if p.curTokenIs(lexer.ILLEGAL) {
		p.unexpected(p.curToken)
	}
	got := p.curToken.Literal
	if p.curTokenIs(lexer.EOF) {
		got = "end of query"
	}
	p.fail(p.curToken, "PARSE-0001", map[string]any{"Expected": tokenTypeToReadableName(t), "Got": got})
}

// tokenTypeToReadableName converts a token type to a human-readable name
func tokenTypeToReadableName(t lexer.TokenType) string {
	switch t {
	case lexer.IDENT:
		return "identifier"
	case lexer.INT:
		return "integer"
	case lexer.STRING:
		return "string"
	case lexer.RPAREN:
		return "')'"
	case lexer.LPAREN:
		return "'('"
	case lexer.RBRACKET:
		return "']'"
	case lexer.RBRACE:
		return "'}'"
	case lexer.PIPE:
		return "'|'"
	case lexer.COLON:
		return "':'"
	case lexer.COMMA:
		return "','"
	}
	return t.String()
}

// ============================================================================
// Precedence levels
// ============================================================================

// parseCondition parses: or ('?' or ':' or)?
func (p *Parser) parseCondition() ast.Expression {
	test := p.parseOr()
	if !p.curTokenIs(lexer.QUESTION) {
		return test
	}
	cond := &ast.Condition{Token: p.curToken, Test: test}
	p.nextToken()
	cond.IfTrue = p.parseOr()
	p.expect(lexer.COLON)
	cond.IfFalse = p.parseOr()
	return cond
}

// parseOr parses: and ('||' and)*
func (p *Parser) parseOr() ast.Expression {
	first := p.parseAnd()
	if !p.curTokenIs(lexer.OR) {
		return first
	}
	or := &ast.Or{Token: p.curToken, Operands: []ast.Expression{first}}
	for p.curTokenIs(lexer.OR) {
		p.nextToken()
		or.Operands = append(or.Operands, p.parseAnd())
	}
	return or
}

// parseAnd parses: rel ('&&' rel)*
func (p *Parser) parseAnd() ast.Expression {
	first := p.parseRelational()
	if !p.curTokenIs(lexer.AND) {
		return first
	}
	and := &ast.And{Token: p.curToken, Operands: []ast.Expression{first}}
	for p.curTokenIs(lexer.AND) {
		p.nextToken()
		and.Operands = append(and.Operands, p.parseRelational())
	}
	return and
}

// parseRelational parses: not (cmpOp not)?
// Relational operators do not associate; a second operator is left for
// the caller to reject.
func (p *Parser) parseRelational() ast.Expression {
	left := p.parseNot()
	op, ok := ast.CompareOpFor(p.curToken.Type)
	if !ok {
		return left
	}
	cmp := &ast.Comparison{Token: p.curToken, Op: op, Left: left}
	p.nextToken()
	cmp.Right = p.parseNot()
	return cmp
}

// parseNot parses: '!' not | postfix. A double negation collapses.
func (p *Parser) parseNot() ast.Expression {
	if !p.curTokenIs(lexer.BANG) {
		return p.parsePostfix()
	}
	tok := p.curToken
	p.nextToken()
	operand := p.parseNot()
	if inner, ok := operand.(*ast.Not); ok {
		return inner.Operand
	}
	return &ast.Not{Token: tok, Operand: operand}
}

// parsePostfix parses a primary followed by any chain of '.name',
// '[index]', '.filter(...)' and '.satisfiesAny/All(...)'.
func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for {
		switch p.curToken.Type {
		case lexer.DOT:
			p.nextToken()
			expr = p.parseDotSuffix(expr)
		case lexer.LBRACKET:
			tok := p.curToken
			p.nextToken()
			key := p.parseCondition()
			p.expect(lexer.RBRACKET)
			expr = &ast.Index{Token: tok, Operand: expr, Key: key}
		default:
			return expr
		}
	}
}

var capabilityQueries = map[string]bool{"satisfiesAny": false, "satisfiesAll": true}

func (p *Parser) parseDotSuffix(operand ast.Expression) ast.Expression {
	tok := p.curToken
	call := p.peekTokenIs(lexer.LPAREN)

	if kind, ok := ast.FilterKindFor(tok.Type); ok && call {
		p.nextToken() // name
		p.nextToken() // (
		f := p.parseFilter(tok, kind, operand)
		p.expect(lexer.RPAREN)
		return f
	}

	if !tok.Type.IsFilter() && tok.Type != lexer.IDENT {
		p.expectError(lexer.IDENT)
	}

	if call {
		all, ok := capabilityQueries[tok.Literal]
		if !ok {
			candidates := append(slices.Clone(lexer.FilterNames), "satisfiesAny", "satisfiesAll")
			p.failWith(tok, perrors.NewUnknownFilter(tok.Literal, candidates))
		}
		p.nextToken() // name
		p.nextToken() // (
		cq := &ast.CapabilityQuery{Token: tok, Operand: operand, All: all}
		cq.Requirements = p.parseCondition()
		p.expect(lexer.RPAREN)
		return cq
	}

	p.nextToken()
	return &ast.Member{Token: tok, Operand: operand, Name: tok.Literal}
}

// parseFilter parses the argument list of a collection filter; the
// current token is the first token after '('.
func (p *Parser) parseFilter(tok lexer.Token, kind ast.FilterKind, operand ast.Expression) ast.Expression {
	f := &ast.Filter{Token: tok, Kind: kind, Operand: operand}

	switch kind {
	case ast.FilterLatest, ast.FilterFlatten:
		if p.curTokenIs(lexer.RPAREN) {
			return f
		}
		// latest(l) and flatten(l) are select(l).latest() and select(l).flatten()
		f.Operand = &ast.Filter{Token: tok, Kind: ast.FilterSelect, Operand: operand, Lambda: p.parseLambda()}
	case ast.FilterLimit:
		if p.curTokenIs(lexer.RPAREN) {
			p.fail(tok, "PARSE-0015", map[string]any{"Filter": kind.String()})
		}
		f.Arg = p.parseCondition()
	case ast.FilterUnique:
		if !p.curTokenIs(lexer.RPAREN) {
			f.Arg = p.parseCondition()
		}
	default:
		if p.curTokenIs(lexer.RPAREN) {
			p.fail(tok, "PARSE-0014", map[string]any{"Filter": kind.String()})
		}
		f.Lambda = p.parseLambda()
	}
	return f
}

// ============================================================================
// Lambdas
// ============================================================================

// parseLambda parses one of
//
//	x | body
//	{x | body}
//	c1, _, {a, b | body}   (currying, braces optional)
//	body                   (implicit, '_' is the element)
func (p *Parser) parseLambda() *ast.Lambda {
	if p.atLambdaParams() {
		tok := p.curToken
		names, braced := p.parseParamList()
		if len(names) != 1 {
			p.fail(tok, "PARSE-0006", map[string]any{"Got": len(names)})
		}
		each := ast.NewEach(names[0].Literal)
		lambda := &ast.Lambda{Token: tok, Params: []*ast.Variable{each}, Each: each}
		lambda.Body = p.parseLambdaBody([]*ast.Variable{each}, braced)
		return lambda
	}

	if p.hasTopLevelComma() {
		return p.parseCurriedLambda()
	}

	// Implicit lambda: the body is written directly and '_' is the element.
	tok := p.curToken
	each := ast.NewEach("_")
	return &ast.Lambda{
		Token:    tok,
		Params:   []*ast.Variable{each},
		Each:     each,
		Body:     p.parseLambdaBody([]*ast.Variable{each}, false),
		Implicit: true,
	}
}

// parseCurriedLambda parses currying expressions followed by the lambda
// they bind.
func (p *Parser) parseCurriedLambda() *ast.Lambda {
	start := p.curToken
	var currying []ast.Expression
	eachAt, placeholders := -1, 0

	for !p.atLambdaParams() {
		if p.curTokenIs(lexer.EACH) && p.peekTokenIs(lexer.COMMA) {
			eachAt = len(currying)
			placeholders++
			currying = append(currying, nil)
			p.nextToken()
		} else {
			currying = append(currying, p.parseCondition())
		}
		p.expect(lexer.COMMA)
	}

	if placeholders != 1 {
		p.fail(start, "PARSE-0007", map[string]any{"Got": placeholders})
	}

	tok := p.curToken
	names, braced := p.parseParamList()
	if len(names) != len(currying) {
		p.fail(tok, "PARSE-0008", map[string]any{"Params": len(names), "Args": len(currying)})
	}

	params := make([]*ast.Variable, len(names))
	for i, name := range names {
		if i == eachAt {
			params[i] = ast.NewEach(name.Literal)
		} else {
			params[i] = ast.NewNamed(name.Literal)
		}
	}

	lambda := &ast.Lambda{Token: tok, Params: params, Currying: currying, Each: params[eachAt]}
	lambda.Body = p.parseLambdaBody(params, braced)
	return lambda
}

// parseParamList parses '{'? IDENT (',' IDENT)* '|' and reports whether
// the list was opened with a brace.
func (p *Parser) parseParamList() ([]lexer.Token, bool) {
	braced := p.curTokenIs(lexer.LBRACE)
	if braced {
		p.nextToken()
	}
	names := []lexer.Token{p.expect(lexer.IDENT)}
	for p.curTokenIs(lexer.COMMA) {
		p.nextToken()
		names = append(names, p.expect(lexer.IDENT))
	}
	p.expect(lexer.PIPE)
	return names, braced
}

func (p *Parser) parseLambdaBody(params []*ast.Variable, braced bool) ast.Expression {
	p.scope = append(p.scope, params...)
	body := p.parseCondition()
	p.scope = p.scope[:len(p.scope)-len(params)]
	if braced {
		p.expect(lexer.RBRACE)
	}
	return body
}

// atLambdaParams reports whether the upcoming tokens open a lambda
// parameter list: '{' or IDENT (',' IDENT)* '|'.
func (p *Parser) atLambdaParams() bool {
	if p.curTokenIs(lexer.LBRACE) {
		return true
	}
	if !p.curTokenIs(lexer.IDENT) {
		return false
	}
	switch p.peekToken.Type {
	case lexer.PIPE:
		return true
	case lexer.COMMA:
	default:
		return false
	}

	state := p.l.SaveState()
	defer p.l.RestoreState(state)
	for {
		if p.l.NextToken().Type != lexer.IDENT {
			return false
		}
		switch p.l.NextToken().Type {
		case lexer.PIPE:
			return true
		case lexer.COMMA:
		default:
			return false
		}
	}
}

// hasTopLevelComma reports whether a ',' appears before the ')' that
// closes the current argument list.
func (p *Parser) hasTopLevelComma() bool {
	state := p.l.SaveState()
	defer p.l.RestoreState(state)

	depth := 0
	tok := p.curToken
	next := p.peekToken
	for {
		switch tok.Type {
		case lexer.COMMA:
			if depth == 0 {
				return true
			}
		case lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE:
			depth++
		case lexer.RPAREN, lexer.RBRACKET, lexer.RBRACE:
			if depth == 0 {
				return false
			}
			depth--
		case lexer.EOF, lexer.ILLEGAL:
			return false
		}
		tok, next = next, p.l.NextToken()
	}
}

// ============================================================================
// Primaries
// ============================================================================

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.curToken

	switch tok.Type {
	case lexer.LPAREN:
		p.nextToken()
		expr := p.parseCondition()
		p.expect(lexer.RPAREN)
		return expr

	case lexer.LBRACKET:
		p.nextToken()
		return &ast.ArrayLiteral{Token: tok, Elements: p.parseExpressionList(lexer.RBRACKET)}

	case lexer.INT:
		value, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.fail(tok, "PARSE-0010", map[string]any{"Literal": tok.Literal})
		}
		p.nextToken()
		return &ast.Literal{Token: tok, Value: value}

	case lexer.STRING:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: tok.Literal}

	case lexer.PATTERN:
		p.nextToken()
		return &ast.PatternLiteral{Token: tok, Pattern: ast.CompilePattern(tok.Literal)}

	case lexer.NULL:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: nil}

	case lexer.TRUE, lexer.FALSE:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: tok.Type == lexer.TRUE}

	case lexer.DOLLAR:
		return p.parseParameter()

	case lexer.EACH:
		p.nextToken()
		for i := len(p.scope) - 1; i >= 0; i-- {
			if p.scope[i].Kind == ast.KindEach {
				return &ast.VariableReference{Token: tok, Variable: p.scope[i]}
			}
		}
		p.fail(tok, "PARSE-0009", nil)

	case lexer.IDENT:
		if p.peekTokenIs(lexer.LPAREN) {
			return p.parseConstructor()
		}
		p.nextToken()
		return p.resolve(tok)
	}

	p.unexpected(tok)
	return nil
}

func (p *Parser) parseParameter() ast.Expression {
	tok := p.curToken
	p.nextToken()

	switch p.curToken.Type {
	case lexer.INT:
		index, err := strconv.Atoi(p.curToken.Literal)
		if err != nil {
			p.fail(p.curToken, "PARSE-0010", map[string]any{"Literal": p.curToken.Literal})
		}
		p.nextToken()
		return &ast.Parameter{Token: tok, Index: index}
	case lexer.IDENT:
		name := p.curToken.Literal
		p.nextToken()
		return &ast.Parameter{Token: tok, Name: name}
	}
	p.expectError(lexer.IDENT)
	return nil
}

// resolve maps a bare identifier to a lambda parameter, the root variable,
// or a member of the root.
func (p *Parser) resolve(tok lexer.Token) ast.Expression {
	for i := len(p.scope) - 1; i >= 0; i-- {
		if p.scope[i].Name == tok.Literal {
			return &ast.VariableReference{Token: tok, Variable: p.scope[i]}
		}
	}

	switch tok.Literal {
	case p.root.Name:
		return &ast.VariableReference{Token: tok, Variable: p.root}
	case ast.Everything.Name, ast.Item.Name:
		p.fail(tok, "PARSE-0003", map[string]any{"Name": tok.Literal})
	}

	root := &ast.VariableReference{Token: tok, Variable: p.root}
	return &ast.Member{Token: tok, Operand: root, Name: tok.Literal}
}

func (p *Parser) parseConstructor() ast.Expression {
	tok := p.curToken
	arity, ok := ast.ConstructorArity[tok.Literal]
	if !ok {
		names := make([]string, 0, len(ast.ConstructorArity))
		for name := range ast.ConstructorArity {
			names = append(names, name)
		}
		sort.Strings(names)
		p.fail(tok, "PARSE-0011", map[string]any{"Name": tok.Literal, "Constructors": strings.Join(names, ", ")})
	}

	p.nextToken() // name
	p.nextToken() // (
	args := p.parseExpressionList(lexer.RPAREN)
	if arity >= 0 && len(args) != arity {
		p.fail(tok, "PARSE-0004", map[string]any{"Name": tok.Literal, "Expected": arity, "Got": len(args)})
	}
	return &ast.Constructor{Token: tok, Name: tok.Literal, Args: args}
}

// parseExpressionList parses comma-separated conditions up to and
// including end. The current token is the first after the opener.
func (p *Parser) parseExpressionList(end lexer.TokenType) []ast.Expression {
	args := []ast.Expression{}

	if p.curTokenIs(end) {
		p.nextToken()
		return args
	}

	args = append(args, p.parseCondition())
	for p.curTokenIs(lexer.COMMA) {
		p.nextToken()
		args = append(args, p.parseCondition())
	}
	p.expect(end)

	return args
}
