package lexer

import (
	"fmt"
	"strings"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Identifiers and literals
	IDENT   // name, providedCapabilities, ...
	INT     // 1343456
	STRING  // 'foo' or "foo"
	PATTERN // /org.eclipse.*/

	// Operators
	OR       // ||
	AND      // &&
	EQ       // ==
	NOT_EQ   // !=
	LT       // <
	LTE      // <=
	GT       // >
	GTE      // >=
	MATCHES  // ~=
	BANG     // !
	QUESTION // ?
	COLON    // :
	PIPE     // |
	DOLLAR   // $
	COMMA    // ,
	DOT      // .
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }

	// Keywords
	SELECT   // "select"
	REJECT   // "reject"
	COLLECT  // "collect"
	EXISTS   // "exists"
	ALL      // "all"
	FIRST    // "first"
	FLATTEN  // "flatten"
	LATEST   // "latest"
	LIMIT    // "limit"
	UNIQUE   // "unique"
	TRAVERSE // "traverse"
	NULL     // "null"
	TRUE     // "true"
	FALSE    // "false"
	EACH     // "_"
)

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Offset  int // byte offset of the first character of the token
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Offset: %d}", t.Type, t.Literal, t.Offset)
}

var tokenNames = map[TokenType]string{
	ILLEGAL:  "ILLEGAL",
	EOF:      "EOF",
	IDENT:    "IDENT",
	INT:      "INT",
	STRING:   "STRING",
	PATTERN:  "PATTERN",
	OR:       "OR",
	AND:      "AND",
	EQ:       "EQ",
	NOT_EQ:   "NOT_EQ",
	LT:       "LT",
	LTE:      "LTE",
	GT:       "GT",
	GTE:      "GTE",
	MATCHES:  "MATCHES",
	BANG:     "BANG",
	QUESTION: "QUESTION",
	COLON:    "COLON",
	PIPE:     "PIPE",
	DOLLAR:   "DOLLAR",
	COMMA:    "COMMA",
	DOT:      "DOT",
	LPAREN:   "LPAREN",
	RPAREN:   "RPAREN",
	LBRACKET: "LBRACKET",
	RBRACKET: "RBRACKET",
	LBRACE:   "LBRACE",
	RBRACE:   "RBRACE",
	SELECT:   "SELECT",
	REJECT:   "REJECT",
	COLLECT:  "COLLECT",
	EXISTS:   "EXISTS",
	ALL:      "ALL",
	FIRST:    "FIRST",
	FLATTEN:  "FLATTEN",
	LATEST:   "LATEST",
	LIMIT:    "LIMIT",
	UNIQUE:   "UNIQUE",
	TRAVERSE: "TRAVERSE",
	NULL:     "NULL",
	TRUE:     "TRUE",
	FALSE:    "FALSE",
	EACH:     "EACH",
}

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// IsFilter reports whether the token names a collection filter.
func (tt TokenType) IsFilter() bool {
	return tt >= SELECT && tt <= TRAVERSE
}

var keywords = map[string]TokenType{
	"select":   SELECT,
	"reject":   REJECT,
	"collect":  COLLECT,
	"exists":   EXISTS,
	"all":      ALL,
	"first":    FIRST,
	"flatten":  FLATTEN,
	"latest":   LATEST,
	"limit":    LIMIT,
	"unique":   UNIQUE,
	"traverse": TRAVERSE,
	"null":     NULL,
	"true":     TRUE,
	"false":    FALSE,
	"_":        EACH,
}

// FilterNames lists the collection filter keywords in declaration order.
var FilterNames = []string{
	"select", "reject", "collect", "exists", "all", "first",
	"flatten", "latest", "limit", "unique", "traverse",
}

// LookupIdent checks if an identifier is a keyword
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// Lexer represents the lexical analyzer
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
}

// New creates a new lexer instance
func New(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Input returns the text being tokenized.
func (l *Lexer) Input() string {
	return l.input
}

// LexerState holds the state of a lexer for save/restore
type LexerState struct {
	position     int
	readPosition int
	ch           byte
}

// SaveState saves the current lexer state for potential restoration
func (l *Lexer) SaveState() LexerState {
	return LexerState{position: l.position, readPosition: l.readPosition, ch: l.ch}
}

// RestoreState restores the lexer to a previously saved state
func (l *Lexer) RestoreState(state LexerState) {
	l.position = state.position
	l.readPosition = state.readPosition
	l.ch = state.ch
}

// PeekToken returns the next token without consuming it
func (l *Lexer) PeekToken() Token {
	state := l.SaveState()
	tok := l.NextToken()
	l.RestoreState(state)
	return tok
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // ASCII NUL character represents EOF
		l.position = len(l.input)
		return
	}
	l.ch = l.input[l.readPosition]
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// twoChar consumes a two character operator starting at the current char.
func (l *Lexer) twoChar(tokenType TokenType) Token {
	start := l.position
	l.readChar()
	l.readChar()
	return Token{Type: tokenType, Literal: l.input[start:l.position], Offset: start}
}

func (l *Lexer) single(tokenType TokenType) Token {
	tok := Token{Type: tokenType, Literal: string(l.ch), Offset: l.position}
	l.readChar()
	return tok
}

func (l *Lexer) illegal(start int, msg string) Token {
	return Token{Type: ILLEGAL, Literal: msg, Offset: start}
}

// NextToken scans the input and returns the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	switch l.ch {
	case 0:
		return Token{Type: EOF, Literal: "", Offset: len(l.input)}
	case '|':
		if l.peekChar() == '|' {
			return l.twoChar(OR)
		}
		return l.single(PIPE)
	case '&':
		if l.peekChar() == '&' {
			return l.twoChar(AND)
		}
		start := l.position
		l.readChar()
		return l.illegal(start, "unexpected '&', did you mean '&&'?")
	case '=':
		if l.peekChar() == '=' {
			return l.twoChar(EQ)
		}
		start := l.position
		l.readChar()
		return l.illegal(start, "unexpected '=', did you mean '=='?")
	case '!':
		if l.peekChar() == '=' {
			return l.twoChar(NOT_EQ)
		}
		return l.single(BANG)
	case '~':
		if l.peekChar() == '=' {
			return l.twoChar(MATCHES)
		}
		start := l.position
		l.readChar()
		return l.illegal(start, "unexpected '~', did you mean '~='?")
	case '<':
		if l.peekChar() == '=' {
			return l.twoChar(LTE)
		}
		return l.single(LT)
	case '>':
		if l.peekChar() == '=' {
			return l.twoChar(GTE)
		}
		return l.single(GT)
	case '?':
		return l.single(QUESTION)
	case ':':
		return l.single(COLON)
	case '$':
		return l.single(DOLLAR)
	case ',':
		return l.single(COMMA)
	case '.':
		return l.single(DOT)
	case '(':
		return l.single(LPAREN)
	case ')':
		return l.single(RPAREN)
	case '[':
		return l.single(LBRACKET)
	case ']':
		return l.single(RBRACKET)
	case '{':
		return l.single(LBRACE)
	case '}':
		return l.single(RBRACE)
	case '\'', '"':
		start := l.position
		str, ok := l.readString(l.ch)
		if !ok {
			return l.illegal(start, "unterminated string")
		}
		return Token{Type: STRING, Literal: str, Offset: start}
	case '/':
		start := l.position
		pattern, ok := l.readPattern()
		if !ok {
			return l.illegal(start, "unterminated pattern")
		}
		return Token{Type: PATTERN, Literal: pattern, Offset: start}
	}

	if isLetter(l.ch) {
		start := l.position
		ident := l.readIdentifier()
		return Token{Type: LookupIdent(ident), Literal: ident, Offset: start}
	}
	if isDigit(l.ch) {
		start := l.position
		return Token{Type: INT, Literal: l.readNumber(), Offset: start}
	}

	start := l.position
	ch := l.ch
	l.readChar()
	return l.illegal(start, fmt.Sprintf("unexpected character '%c'", ch))
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber reads a decimal integer
func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readString reads a quoted string. There is no escaping inside quotes;
// a string ends at the first matching quote.
func (l *Lexer) readString(quote byte) (string, bool) {
	l.readChar() // skip opening quote
	start := l.position
	for l.ch != quote && l.ch != 0 {
		l.readChar()
	}
	if l.ch != quote {
		return "", false
	}
	str := l.input[start:l.position]
	l.readChar() // consume closing quote
	return str, true
}

// readPattern reads a /pattern/ literal. A backslash escapes the
// delimiter only; any other backslash is kept as-is.
func (l *Lexer) readPattern() (string, bool) {
	var sb strings.Builder
	l.readChar() // skip opening /
	for l.ch != '/' && l.ch != 0 {
		if l.ch == '\\' && l.peekChar() == '/' {
			l.readChar()
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch != '/' {
		return "", false
	}
	l.readChar() // consume closing /
	return sb.String(), true
}

func (l *Lexer) skipWhitespace() {
	for isWhitespace(l.ch) {
		l.readChar()
	}
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// isLetter checks if a byte can start an identifier.
func isLetter(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isDigit checks if the character is a digit
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
