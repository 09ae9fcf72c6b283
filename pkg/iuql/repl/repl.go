// Package repl is the interactive iuql shell.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/lexer"
	"github.com/sambeau/iuql/pkg/iuql/query"
	"github.com/sambeau/iuql/pkg/iuql/repo"
)

const PROMPT = "iu> "
const PROMPT_PREDICATE = "?> "
const CONTINUATION_PROMPT = ".. "

const LOGO = `
█ █░█ █▀█ █░░
█ █▄█ ▀▀█ █▄▄ `

// completionWords holds the words offered by tab completion.
var completionWords = func() []string {
	words := []string{"everything", "item", "true", "false", "null"}
	words = append(words, lexer.FilterNames...)
	words = append(words, "satisfiesAny", "satisfiesAll")
	for name := range ast.ConstructorArity {
		words = append(words, name)
	}
	sort.Strings(words)
	return words
}()

// Session holds the state of one shell: the repositories it can query,
// the current one, and the parameters queries see.
type Session struct {
	ctx     context.Context
	engine  *query.Engine
	repos   map[string]repo.Repository
	current string
	params  query.Params
	mode    query.Mode
}

// NewSession creates a session over repos. The first repository in name
// order is selected.
func NewSession(ctx context.Context, engine *query.Engine, repos map[string]repo.Repository, named map[string]any) *Session {
	s := &Session{
		ctx:    ctx,
		engine: engine,
		repos:  repos,
		params: query.Params{Named: make(map[string]any)},
		mode:   query.ModeQuery,
	}
	for k, v := range named {
		s.params.Named[k] = v
	}
	if names := s.repoNames(); len(names) > 0 {
		s.current = names[0]
	}
	return s
}

func (s *Session) repoNames() []string {
	names := make([]string, 0, len(s.repos))
	for name := range s.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) source() any {
	if r, ok := s.repos[s.current]; ok {
		return r
	}
	return []any{}
}

func (s *Session) prompt() string {
	if s.mode == query.ModePredicate {
		return PROMPT_PREDICATE
	}
	return PROMPT
}

// Start runs the shell with line editing, history, and tab completion
// until the user quits.
func Start(out io.Writer, s *Session, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(filterCompletions)

	historyFile := filepath.Join(os.TempDir(), ".iuql_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "%s", LOGO)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "Type ':help' for shell commands")
	fmt.Fprintln(out, "")

	var inputBuffer strings.Builder

	for {
		currentPrompt := s.prompt()
		if inputBuffer.Len() > 0 {
			currentPrompt = CONTINUATION_PROMPT
		}
		input, err := line.Prompt(currentPrompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				if inputBuffer.Len() > 0 {
					fmt.Fprintln(out, "^C (cleared)")
				} else {
					fmt.Fprintln(out, "^C")
				}
				inputBuffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		trimmed := strings.TrimSpace(input)
		if inputBuffer.Len() == 0 && (trimmed == "exit" || trimmed == "quit") {
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		if inputBuffer.Len() == 0 && strings.HasPrefix(trimmed, ":") {
			line.AppendHistory(trimmed)
			s.Command(trimmed, out)
			continue
		}

		if inputBuffer.Len() == 0 && trimmed == "" {
			continue
		}

		if inputBuffer.Len() > 0 {
			inputBuffer.WriteString("\n")
		}
		inputBuffer.WriteString(input)

		fullInput := inputBuffer.String()
		if needsMoreInput(fullInput) {
			continue
		}

		line.AppendHistory(fullInput)
		s.Eval(fullInput, out)
		inputBuffer.Reset()
	}
}

// Eval runs input against the current repository in the current mode and
// prints the results, or the error.
func (s *Session) Eval(input string, out io.Writer) {
	var results []any
	var err error

	if s.mode == query.ModePredicate {
		var it iterator.Iterator
		it, err = s.engine.Filter(s.ctx, input, s.source(), s.params)
		if err == nil {
			results, err = iterator.Collect(it)
		}
	} else {
		results, err = s.engine.Collect(s.ctx, input, s.source(), s.params)
	}

	if err != nil {
		printError(out, err)
		return
	}
	for _, v := range results {
		fmt.Fprintln(out, query.FormatValue(v))
	}
	if len(results) == 1 {
		fmt.Fprintln(out, "(1 result)")
	} else {
		fmt.Fprintf(out, "(%d results)\n", len(results))
	}
}

// Command handles shell commands that start with ':'.
func (s *Session) Command(cmd string, out io.Writer) {
	fields := strings.Fields(cmd)
	name, args := fields[0], fields[1:]

	switch name {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "Shell Commands:")
		fmt.Fprintln(out, "  :help, :h, :?      Show this help")
		fmt.Fprintln(out, "  :mode [query|predicate]")
		fmt.Fprintln(out, "                     Show or switch how input is read")
		fmt.Fprintln(out, "  :repos             List repositories")
		fmt.Fprintln(out, "  :use NAME          Query repository NAME")
		fmt.Fprintln(out, "  :set NAME VALUE    Bind parameter $NAME")
		fmt.Fprintln(out, "  :unset NAME        Remove parameter $NAME")
		fmt.Fprintln(out, "  :params            Show parameters")
		fmt.Fprintln(out, "  :fmt QUERY         Show the canonical form of QUERY")
		fmt.Fprintln(out, "  exit, quit         Exit the shell")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Modes:")
		fmt.Fprintln(out, "  iu> (query)        Input is evaluated once against everything")
		fmt.Fprintln(out, "  ?> (predicate)     Input is tested against each unit")

	case ":mode":
		if len(args) == 0 {
			fmt.Fprintln(out, s.mode)
			return
		}
		switch args[0] {
		case "query":
			s.mode = query.ModeQuery
		case "predicate":
			s.mode = query.ModePredicate
		default:
			fmt.Fprintf(out, "Unknown mode: %s (query or predicate)\n", args[0])
			return
		}
		fmt.Fprintf(out, "Mode: %s\n", s.mode)

	case ":repos":
		names := s.repoNames()
		if len(names) == 0 {
			fmt.Fprintln(out, "(no repositories)")
			return
		}
		for _, n := range names {
			marker := " "
			if n == s.current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", marker, n, s.repos[n].Location())
		}

	case ":use":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: :use NAME")
			return
		}
		if _, ok := s.repos[args[0]]; !ok {
			fmt.Fprintf(out, "Unknown repository: %s\n", args[0])
			return
		}
		s.current = args[0]
		fmt.Fprintf(out, "Using %s\n", s.current)

	case ":set":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: :set NAME VALUE")
			return
		}
		s.params.Named[args[0]] = ParseValue(strings.Join(args[1:], " "))
		fmt.Fprintf(out, "$%s = %s\n", args[0], query.FormatValue(s.params.Named[args[0]]))

	case ":unset":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: :unset NAME")
			return
		}
		delete(s.params.Named, args[0])

	case ":params":
		printParams(out, s.params.Named)

	case ":fmt":
		text := strings.TrimSpace(strings.TrimPrefix(cmd, name))
		formatted, err := s.engine.Format(s.mode, text)
		if err != nil {
			printError(out, err)
			return
		}
		fmt.Fprintln(out, formatted)

	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", name)
	}
}

// ParseValue reads a parameter value typed on a command line: an integer,
// true, false, null, or otherwise a string. Quotes around a string are
// removed.
func ParseValue(text string) any {
	switch text {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		return text[1 : len(text)-1]
	}
	return text
}

func printParams(out io.Writer, params map[string]any) {
	if len(params) == 0 {
		fmt.Fprintln(out, "(no parameters)")
		return
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  $%s = %s\n", name, query.FormatValue(params[name]))
	}
}

// filterCompletions returns completion suggestions for the word being typed
func filterCompletions(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	start := len(line)
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	prefix, word := line[:start], line[start:]
	if word == "" {
		return nil
	}

	var matches []string
	for _, w := range completionWords {
		if strings.HasPrefix(w, word) {
			matches = append(matches, prefix+w)
		}
	}
	return matches
}

func isWordChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// needsMoreInput checks if the input has unclosed braces, brackets or
// parentheses outside string literals
func needsMoreInput(input string) bool {
	depth := 0
	var quote byte
	escapeNext := false

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if quote != 0 {
			switch ch {
			case '\\':
				escapeNext = true
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		}
	}

	return depth > 0
}

// printError prints a query error with its source context and hints
func printError(out io.Writer, err error) {
	var qe *perrors.QueryError
	if errors.As(err, &qe) {
		io.WriteString(out, qe.PrettyString())
		io.WriteString(out, "\n")
		return
	}
	fmt.Fprintf(out, "Error: %v\n", err)
}
