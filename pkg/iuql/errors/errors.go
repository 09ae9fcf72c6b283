// Package errors provides structured error types for the IUQL query language.
//
// This package defines QueryError, a unified error type that represents
// both parse errors and evaluation errors with enough metadata for display
// and programmatic handling.
package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and templating.
type ErrorClass string

const (
	ClassParse       ErrorClass = "parse"       // Syntax errors
	ClassType        ErrorClass = "type"        // Type mismatches
	ClassArgument    ErrorClass = "argument"    // Invalid argument values
	ClassUndefined   ErrorClass = "undefined"   // Not found/defined
	ClassIndex       ErrorClass = "index"       // Out of bounds
	ClassConstructor ErrorClass = "constructor" // Construction callback failures
	ClassSource      ErrorClass = "source"      // Candidate source failures
)

// QueryError represents any error from parsing or evaluating a query.
type QueryError struct {
	Class   ErrorClass     `json:"class"`           // Error category
	Code    string         `json:"code"`            // Error code (e.g., "TYPE-0001")
	Message string         `json:"message"`         // Human-readable message
	Hints   []string       `json:"hints,omitempty"` // Suggestions for fixing
	Query   string         `json:"query,omitempty"` // Full query text (if known)
	Offset  int            `json:"offset"`          // Byte offset in Query (-1 if unknown)
	Data    map[string]any `json:"data,omitempty"`  // Template variables
	Cause   error          `json:"-"`               // Underlying error, if any
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return e.String()
}

// Unwrap returns the underlying cause so errors.Is and errors.As see it.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// String returns a formatted string representation of the error.
func (e *QueryError) String() string {
	var sb strings.Builder

	if e.Offset >= 0 {
		fmt.Fprintf(&sb, "offset %d: ", e.Offset)
	}
	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// PrettyString returns a multi-line representation that points at the
// offending position in the query text.
func (e *QueryError) PrettyString() string {
	var sb strings.Builder

	switch e.Class {
	case ClassParse:
		sb.WriteString("Parse error")
	default:
		sb.WriteString("Evaluation error")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if e.Query != "" && e.Offset >= 0 && e.Offset <= len(e.Query) && !strings.Contains(e.Query, "\n") {
		sb.WriteString("\n  ")
		sb.WriteString(e.Query)
		sb.WriteString("\n  ")
		sb.WriteString(strings.Repeat(" ", e.Offset))
		sb.WriteString("^")
	}

	for i, hint := range e.Hints {
		sb.WriteString("\n  ")
		if i == 0 {
			sb.WriteString("Hint: ")
		} else {
			sb.WriteString("  or: ")
		}
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *QueryError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithQuery returns a copy of the error with the query text set.
func (e *QueryError) WithQuery(query string) *QueryError {
	copy := *e
	copy.Query = query
	return &copy
}

// WithOffset returns a copy of the error with the offset set.
func (e *QueryError) WithOffset(offset int) *QueryError {
	copy := *e
	copy.Offset = offset
	return &copy
}

// IsParseError returns true if this is a parser error.
func (e *QueryError) IsParseError() bool {
	return e.Class == ClassParse
}

// IsRuntimeError returns true if this is an evaluation error.
func (e *QueryError) IsRuntimeError() bool {
	return e.Class != ClassParse
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass // Error category
	Template string     // Message template with {{.placeholders}}
	Hints    []string   // Hint templates (may use {{.placeholders}})
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Parse errors (PARSE-0xxx)
	// ========================================
	"PARSE-0001": {
		Class:    ClassParse,
		Template: "expected {{.Expected}}, got '{{.Got}}'",
	},
	"PARSE-0002": {
		Class:    ClassParse,
		Template: "unexpected '{{.Token}}'",
	},
	"PARSE-0003": {
		Class:    ClassParse,
		Template: "no such variable: {{.Name}}",
	},
	"PARSE-0004": {
		Class:    ClassParse,
		Template: "{{.Name}} expects {{.Expected}} argument(s), got {{.Got}}",
	},
	"PARSE-0005": {
		Class:    ClassParse,
		Template: "unknown collection filter '{{.Name}}'",
	},
	"PARSE-0006": {
		Class:    ClassParse,
		Template: "a lambda without currying must declare exactly one parameter, got {{.Got}}",
		Hints:    []string{"x | body", "{x | body}"},
	},
	"PARSE-0007": {
		Class:    ClassParse,
		Template: "curried arguments must contain exactly one '_', got {{.Got}}",
		Hints:    []string{"set(), _, {cache, each | body}"},
	},
	"PARSE-0008": {
		Class:    ClassParse,
		Template: "lambda declares {{.Params}} parameter(s) but {{.Args}} curried argument(s) were given",
	},
	"PARSE-0009": {
		Class:    ClassParse,
		Template: "'_' can only be used inside a lambda",
	},
	"PARSE-0010": {
		Class:    ClassParse,
		Template: "invalid integer literal: {{.Literal}}",
	},
	"PARSE-0011": {
		Class:    ClassParse,
		Template: "'{{.Name}}' is not a constructor",
		Hints:    []string{"constructors: {{.Constructors}}"},
	},
	"PARSE-0012": {
		Class:    ClassParse,
		Template: "unexpected end of query",
	},
	"PARSE-0013": {
		Class:    ClassParse,
		Template: "{{.Message}}",
	},
	"PARSE-0014": {
		Class:    ClassParse,
		Template: "{{.Filter}} requires a lambda argument",
		Hints:    []string{"{{.Filter}}(x | ...)"},
	},
	"PARSE-0015": {
		Class:    ClassParse,
		Template: "{{.Filter}} requires an argument",
	},

	// ========================================
	// Type errors (TYPE-0xxx)
	// ========================================
	"TYPE-0001": {
		Class:    ClassType,
		Template: "cannot compare a {{.Left}} to a {{.Right}}",
	},
	"TYPE-0002": {
		Class:    ClassType,
		Template: "{{.Operator}} expects a boolean, got {{.Got}}",
	},
	"TYPE-0003": {
		Class:    ClassType,
		Template: "{{.Function}} cannot iterate over {{.Got}}",
	},
	"TYPE-0004": {
		Class:    ClassType,
		Template: "cannot use [] on {{.Got}}",
	},
	"TYPE-0005": {
		Class:    ClassType,
		Template: "cannot access member '{{.Name}}' on null",
	},
	"TYPE-0006": {
		Class:    ClassType,
		Template: "cannot index {{.Got}} with {{.IndexType}}",
	},
	"TYPE-0007": {
		Class:    ClassType,
		Template: "{{.Operator}} cannot mix booleans and collections, got {{.Got}}",
	},

	// ========================================
	// Undefined errors (UNDEF-0xxx)
	// ========================================
	"UNDEF-0001": {
		Class:    ClassUndefined,
		Template: "{{.Type}} has no member '{{.Name}}'",
	},
	"UNDEF-0002": {
		Class:    ClassUndefined,
		Template: "variable {{.Name}} is not bound",
	},
	"UNDEF-0003": {
		Class:    ClassUndefined,
		Template: "no such parameter: ${{.Name}}",
	},

	// ========================================
	// Argument errors (ARG-0xxx)
	// ========================================
	"ARG-0001": {
		Class:    ClassArgument,
		Template: "limit expression did not evaluate to a positive integer",
	},
	"ARG-0002": {
		Class:    ClassArgument,
		Template: "unique cache must be a set, got {{.Got}}",
	},
	"ARG-0003": {
		Class:    ClassArgument,
		Template: "{{.Function}} requires a string argument, got {{.Got}}",
	},
	"ARG-0004": {
		Class:    ClassArgument,
		Template: "latest can only be applied to versioned items, got {{.Got}}",
	},
	"ARG-0005": {
		Class:    ClassArgument,
		Template: "{{.Function}} expects {{.Expected}}, got {{.Got}}",
	},

	// ========================================
	// Index errors (INDEX-0xxx)
	// ========================================
	"INDEX-0001": {
		Class:    ClassIndex,
		Template: "index {{.Index}} out of range [0:{{.Length}}]",
	},

	// ========================================
	// Constructor errors (CTOR-0xxx)
	// ========================================
	"CTOR-0001": {
		Class:    ClassConstructor,
		Template: "cannot construct {{.Name}} from '{{.Arg}}': {{.Cause}}",
	},
	"CTOR-0002": {
		Class:    ClassConstructor,
		Template: "no constructor registered for {{.Name}}",
	},

	// ========================================
	// Source errors (SOURCE-0xxx)
	// ========================================
	"SOURCE-0001": {
		Class:    ClassSource,
		Template: "candidate source failed: {{.Cause}}",
	},
}

// New creates a QueryError from the catalog.
// If the code is not found, creates a generic error with the message.
func New(code string, data map[string]any) *QueryError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &QueryError{
			Class:   ClassType,
			Code:    code,
			Message: msg,
			Offset:  -1,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &QueryError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Offset:  -1,
		Data:    data,
	}
}

// NewAt creates a QueryError with the query text and offset set.
func NewAt(code string, query string, offset int, data map[string]any) *QueryError {
	err := New(code, data)
	err.Query = query
	err.Offset = offset
	return err
}

// Wrap creates a QueryError from the catalog that keeps cause as its
// underlying error.
func Wrap(code string, cause error, data map[string]any) *QueryError {
	if data == nil {
		data = map[string]any{}
	}
	if cause != nil {
		data["Cause"] = cause.Error()
	}
	err := New(code, data)
	err.Cause = cause
	return err
}

// NewSimple creates a simple error without using the catalog.
func NewSimple(class ErrorClass, message string) *QueryError {
	return &QueryError{
		Class:   class,
		Message: message,
		Offset:  -1,
	}
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// threshold returns the maximum edit distance worth suggesting for input.
// Short words (1-3): max 1 edit; medium (4-6): 2; longer: 3.
func threshold(input string) int {
	switch {
	case len(input) >= 7:
		return 3
	case len(input) >= 4:
		return 2
	default:
		return 1
	}
}

// FuzzyMatch represents a fuzzy match result with its distance.
type FuzzyMatch struct {
	Value    string
	Distance int
}

// FindClosestMatch finds the closest match to the given string from candidates.
// Returns the best match if the distance is within the threshold, otherwise empty string.
func FindClosestMatch(input string, candidates []string) string {
	matches := FindTopMatches(input, candidates, 1)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// FindTopMatches returns the top N closest matches to the input.
func FindTopMatches(input string, candidates []string, n int) []string {
	if len(input) == 0 || len(candidates) == 0 || n <= 0 {
		return nil
	}

	inputLower := strings.ToLower(input)

	var matches []FuzzyMatch
	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		// Exclude exact matches
		if dist > 0 {
			matches = append(matches, FuzzyMatch{Value: candidate, Distance: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	limit := threshold(input)
	var result []string
	for i := 0; i < len(matches) && i < n; i++ {
		if matches[i].Distance <= limit {
			result = append(result, matches[i].Value)
		}
	}

	return result
}

// NewUnknownFilter creates an unknown collection filter error with a
// "did you mean" hint when a close filter name exists.
func NewUnknownFilter(name string, filters []string) *QueryError {
	err := New("PARSE-0005", map[string]any{"Name": name})
	if suggestion := FindClosestMatch(name, filters); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// NewUndefinedMember creates an undefined member error with optional fuzzy matching.
func NewUndefinedMember(name, typeName string, available []string) *QueryError {
	err := New("UNDEF-0001", map[string]any{"Name": name, "Type": typeName})
	if suggestion := FindClosestMatch(name, available); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}
