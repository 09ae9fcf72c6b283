// Package filter implements LDAP-style filters such as
//
//	(&(osgi.os=linux)(|(osgi.arch=x86_64)(osgi.arch=aarch64)))
//
// A filter is matched against a property source: a string-keyed map or
// any value implementing Properties.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sambeau/iuql/pkg/iuql/version"
)

// Properties is a read-only property bag.
type Properties interface {
	Property(key string) (any, bool)
}

// Filter is a parsed, immutable LDAP filter.
type Filter struct {
	root node
}

// Parse parses an LDAP filter string.
func Parse(s string) (*Filter, error) {
	p := &parser{input: strings.TrimSpace(s)}
	if p.input == "" {
		return nil, fmt.Errorf("empty filter")
	}
	root, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.input) {
		return nil, p.errorf("unexpected trailing text")
	}
	return &Filter{root: root}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Match reports whether the properties of v satisfy the filter. A nil
// source matches only filters that do not require any property.
func (f *Filter) Match(v any) bool {
	return f.root.match(lookupFunc(v))
}

// Equal reports whether two filters are structurally the same.
func (f *Filter) Equal(o *Filter) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.String() == o.String()
}

// String returns the normalized filter text.
func (f *Filter) String() string {
	var sb strings.Builder
	f.root.write(&sb)
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (f *Filter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Filter) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

type lookup func(key string) (any, bool)

func lookupFunc(v any) lookup {
	switch m := v.(type) {
	case Properties:
		return m.Property
	case map[string]string:
		return func(key string) (any, bool) {
			if s, ok := m[key]; ok {
				return s, true
			}
			for k, s := range m {
				if strings.EqualFold(k, key) {
					return s, true
				}
			}
			return nil, false
		}
	case map[string]any:
		return func(key string) (any, bool) {
			if x, ok := m[key]; ok {
				return x, true
			}
			for k, x := range m {
				if strings.EqualFold(k, key) {
					return x, true
				}
			}
			return nil, false
		}
	}
	return func(string) (any, bool) { return nil, false }
}

// ============================================================================
// Nodes
// ============================================================================

type node interface {
	match(get lookup) bool
	write(sb *strings.Builder)
}

type andNode []node

func (n andNode) match(get lookup) bool {
	for _, c := range n {
		if !c.match(get) {
			return false
		}
	}
	return true
}

func (n andNode) write(sb *strings.Builder) { writeComposite(sb, '&', n) }

type orNode []node

func (n orNode) match(get lookup) bool {
	for _, c := range n {
		if c.match(get) {
			return true
		}
	}
	return false
}

func (n orNode) write(sb *strings.Builder) { writeComposite(sb, '|', n) }

func writeComposite(sb *strings.Builder, op byte, children []node) {
	sb.WriteByte('(')
	sb.WriteByte(op)
	for _, c := range children {
		c.write(sb)
	}
	sb.WriteByte(')')
}

type notNode struct{ child node }

func (n notNode) match(get lookup) bool { return !n.child.match(get) }

func (n notNode) write(sb *strings.Builder) {
	sb.WriteString("(!")
	n.child.write(sb)
	sb.WriteByte(')')
}

type presentNode struct{ attr string }

func (n presentNode) match(get lookup) bool {
	_, ok := get(n.attr)
	return ok
}

func (n presentNode) write(sb *strings.Builder) {
	sb.WriteString("(" + n.attr + "=*)")
}

type operator string

const (
	opEqual   operator = "="
	opApprox  operator = "~="
	opGreater operator = ">="
	opLess    operator = "<="
)

type compareNode struct {
	attr  string
	op    operator
	value string
	parts []string // substring pieces when value holds unescaped '*'
}

func (n compareNode) match(get lookup) bool {
	v, ok := get(n.attr)
	if !ok {
		return false
	}
	if list, ok := v.([]string); ok {
		for _, s := range list {
			if n.matchValue(s) {
				return true
			}
		}
		return false
	}
	return n.matchValue(v)
}

func (n compareNode) matchValue(v any) bool {
	if n.parts != nil {
		s, ok := v.(string)
		return ok && matchSubstring(s, n.parts)
	}

	c, ok := compareTo(v, n.value, n.op == opApprox)
	if !ok {
		return false
	}
	switch n.op {
	case opEqual, opApprox:
		return c == 0
	case opGreater:
		return c >= 0
	case opLess:
		return c <= 0
	}
	return false
}

// compareTo compares a property value with filter text, parsing the text
// as the property's type.
func compareTo(v any, text string, approx bool) (int, bool) {
	switch x := v.(type) {
	case string:
		if approx {
			return strings.Compare(normalize(x), normalize(text)), true
		}
		return strings.Compare(x, text), true
	case version.Version:
		o, err := version.Parse(text)
		if err != nil {
			return 0, false
		}
		return x.Compare(o), true
	case bool:
		o, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil || o != x {
			return 1, err == nil
		}
		return 0, true
	case int:
		return compareInt(int64(x), text)
	case int64:
		return compareInt(x, text)
	case float64:
		o, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, false
		}
		switch {
		case x < o:
			return -1, true
		case x > o:
			return 1, true
		}
		return 0, true
	case fmt.Stringer:
		return compareTo(x.String(), text, approx)
	}
	return 0, false
}

func compareInt(x int64, text string) (int, bool) {
	o, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case x < o:
		return -1, true
	case x > o:
		return 1, true
	}
	return 0, true
}

// normalize drops whitespace and case for approximate matching.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func matchSubstring(s string, parts []string) bool {
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := len(parts) - 1
	for _, part := range parts[1:last] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, parts[last])
}

func (n compareNode) write(sb *strings.Builder) {
	sb.WriteByte('(')
	sb.WriteString(n.attr)
	sb.WriteString(string(n.op))
	if n.parts != nil {
		for i, part := range n.parts {
			if i > 0 {
				sb.WriteByte('*')
			}
			sb.WriteString(escape(part))
		}
	} else {
		sb.WriteString(escape(n.value))
	}
	sb.WriteByte(')')
}

func escape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '*', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ============================================================================
// Parser
// ============================================================================

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid filter %q at %d: %s", p.input, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) parseFilter() (node, error) {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != '(' {
		return nil, p.errorf("expected '('")
	}
	p.pos++
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, p.errorf("unexpected end")
	}

	var n node
	var err error
	switch p.input[p.pos] {
	case '&':
		p.pos++
		var list []node
		list, err = p.parseList()
		n = andNode(list)
	case '|':
		p.pos++
		var list []node
		list, err = p.parseList()
		n = orNode(list)
	case '!':
		p.pos++
		var child node
		child, err = p.parseFilter()
		n = notNode{child: child}
	default:
		n, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	p.skipSpace()
	return n, nil
}

func (p *parser) parseList() ([]node, error) {
	var list []node
	p.skipSpace()
	for p.pos < len(p.input) && p.input[p.pos] == '(' {
		n, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	if len(list) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return list, nil
}

func (p *parser) parseItem() (node, error) {
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune("=~<>()", rune(p.input[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.input[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute")
	}

	var op operator
	switch {
	case strings.HasPrefix(p.input[p.pos:], "~="):
		op = opApprox
	case strings.HasPrefix(p.input[p.pos:], ">="):
		op = opGreater
	case strings.HasPrefix(p.input[p.pos:], "<="):
		op = opLess
	case strings.HasPrefix(p.input[p.pos:], "="):
		op = opEqual
	default:
		return nil, p.errorf("expected operator after %q", attr)
	}
	p.pos += len(op)

	// Read the value up to the closing ')', splitting on unescaped '*'.
	var parts []string
	var sb strings.Builder
	wildcard := false
	for p.pos < len(p.input) && p.input[p.pos] != ')' {
		ch := p.input[p.pos]
		switch ch {
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return nil, p.errorf("dangling escape")
			}
			sb.WriteByte(p.input[p.pos])
		case '*':
			wildcard = true
			parts = append(parts, sb.String())
			sb.Reset()
		case '(':
			return nil, p.errorf("unescaped '(' in value")
		default:
			sb.WriteByte(ch)
		}
		p.pos++
	}
	parts = append(parts, sb.String())

	if !wildcard {
		return compareNode{attr: attr, op: op, value: parts[0]}, nil
	}
	if op != opEqual {
		return nil, p.errorf("wildcards require '='")
	}
	if len(parts) == 2 && parts[0] == "" && parts[1] == "" {
		return presentNode{attr: attr}, nil
	}
	return compareNode{attr: attr, op: op, parts: parts}, nil
}
