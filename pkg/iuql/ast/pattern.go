package ast

import (
	"regexp"
	"strings"
)

// Pattern is a compiled /glob/ literal. '*' matches any run of
// characters, '?' matches one character and a backslash makes the next
// character literal. A pattern must match the whole string.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern compiles a glob. It cannot fail: every glob has a regexp
// equivalent.
func CompilePattern(source string) *Pattern {
	var sb strings.Builder
	sb.WriteString(`(?s)^`)
	escaped := false
	for _, r := range source {
		switch {
		case escaped:
			sb.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*':
			sb.WriteString(`.*`)
		case r == '?':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		sb.WriteString(`\\`)
	}
	sb.WriteString(`$`)
	return &Pattern{source: source, re: regexp.MustCompile(sb.String())}
}

// Match reports whether s matches the whole pattern.
func (p *Pattern) Match(s string) bool {
	return p.re.MatchString(s)
}

// Source returns the glob text.
func (p *Pattern) Source() string {
	return p.source
}

func (p *Pattern) String() string {
	return "/" + strings.ReplaceAll(p.source, "/", `\/`) + "/"
}
