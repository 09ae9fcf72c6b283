package lexer

import (
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `everything.select(x | x.id == 'org.example' && x.version >= $0)
		.latest() || !true ? null : [1, "two", /a\/b*/]
		{a, _ | a ~= $name} != < <= > false`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "everything"},
		{DOT, "."},
		{SELECT, "select"},
		{LPAREN, "("},
		{IDENT, "x"},
		{PIPE, "|"},
		{IDENT, "x"},
		{DOT, "."},
		{IDENT, "id"},
		{EQ, "=="},
		{STRING, "org.example"},
		{AND, "&&"},
		{IDENT, "x"},
		{DOT, "."},
		{IDENT, "version"},
		{GTE, ">="},
		{DOLLAR, "$"},
		{INT, "0"},
		{RPAREN, ")"},
		{DOT, "."},
		{LATEST, "latest"},
		{LPAREN, "("},
		{RPAREN, ")"},
		{OR, "||"},
		{BANG, "!"},
		{TRUE, "true"},
		{QUESTION, "?"},
		{NULL, "null"},
		{COLON, ":"},
		{LBRACKET, "["},
		{INT, "1"},
		{COMMA, ","},
		{STRING, "two"},
		{COMMA, ","},
		{PATTERN, "a/b*"},
		{RBRACKET, "]"},
		{LBRACE, "{"},
		{IDENT, "a"},
		{COMMA, ","},
		{EACH, "_"},
		{PIPE, "|"},
		{IDENT, "a"},
		{MATCHES, "~="},
		{DOLLAR, "$"},
		{IDENT, "name"},
		{RBRACE, "}"},
		{NOT_EQ, "!="},
		{LT, "<"},
		{LTE, "<="},
		{GT, ">"},
		{FALSE, "false"},
		{EOF, ""},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestOffsets(t *testing.T) {
	l := New("a == 'b'")
	want := []int{0, 2, 5, 8}
	for i, offset := range want {
		tok := l.NextToken()
		if tok.Offset != offset {
			t.Errorf("token %d (%s): offset = %d, want %d", i, tok.Type, tok.Offset, offset)
		}
	}
}

func TestIllegalTokens(t *testing.T) {
	tests := []struct {
		input   string
		offset  int
		message string
	}{
		{"1 + 2", 2, "unexpected character '+'"},
		{"a & b", 2, "unexpected '&', did you mean '&&'?"},
		{"a = b", 2, "unexpected '=', did you mean '=='?"},
		{"a ~ b", 2, "unexpected '~', did you mean '~='?"},
		{"'abc", 0, "unterminated string"},
		{`x == "abc`, 5, "unterminated string"},
		{"/abc", 0, "unterminated pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l := New(tt.input)
			for {
				tok := l.NextToken()
				if tok.Type == EOF {
					t.Fatalf("expected ILLEGAL token in %q", tt.input)
				}
				if tok.Type != ILLEGAL {
					continue
				}
				if tok.Offset != tt.offset {
					t.Errorf("offset = %d, want %d", tok.Offset, tt.offset)
				}
				if tok.Literal != tt.message {
					t.Errorf("message = %q, want %q", tok.Literal, tt.message)
				}
				return
			}
		})
	}
}

func TestStringsHaveNoEscapes(t *testing.T) {
	l := New(`'a\b' "it's"`)
	tok := l.NextToken()
	if tok.Type != STRING || tok.Literal != `a\b` {
		t.Fatalf("got %s", tok)
	}
	tok = l.NextToken()
	if tok.Type != STRING || tok.Literal != "it's" {
		t.Fatalf("got %s", tok)
	}
}

func TestPatternKeepsOtherBackslashes(t *testing.T) {
	l := New(`/a\.b\/c/`)
	tok := l.NextToken()
	if tok.Type != PATTERN || tok.Literal != `a\.b/c` {
		t.Fatalf("got %s", tok)
	}
}

func TestPeekTokenDoesNotConsume(t *testing.T) {
	l := New("a | b")
	if got := l.PeekToken(); got.Type != IDENT {
		t.Fatalf("peek = %s", got)
	}
	if got := l.NextToken(); got.Literal != "a" {
		t.Fatalf("next = %s", got)
	}
	state := l.SaveState()
	l.NextToken()
	l.RestoreState(state)
	if got := l.NextToken(); got.Type != PIPE {
		t.Fatalf("after restore = %s", got)
	}
}

func TestLookupIdent(t *testing.T) {
	for _, name := range FilterNames {
		if !LookupIdent(name).IsFilter() {
			t.Errorf("%s should be a filter keyword", name)
		}
	}
	if LookupIdent("_x") != IDENT {
		t.Errorf("_x should be an identifier")
	}
	if LookupIdent("_") != EACH {
		t.Errorf("_ should be the each token")
	}
}
