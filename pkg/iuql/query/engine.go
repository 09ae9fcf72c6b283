// Package query is the embedding API: it parses queries through a shared
// cache and runs them against candidate sources.
package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sambeau/iuql/pkg/iuql/ast"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/evaluator"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/parser"
)

// DefaultCacheSize is the number of parsed expressions an engine keeps.
const DefaultCacheSize = 256

// Mode distinguishes the two query shapes.
type Mode int

const (
	// ModePredicate is a test evaluated once per candidate, rooted at item.
	ModePredicate Mode = iota
	// ModeQuery is evaluated once against a whole source, rooted at
	// everything.
	ModeQuery
)

func (m Mode) String() string {
	if m == ModePredicate {
		return "predicate"
	}
	return "query"
}

type cacheKey struct {
	mode Mode
	text string
}

// Options configure an Engine. The zero value is usable.
type Options struct {
	CacheSize int
	Logger    *log.Logger
	Factory   evaluator.Factory
}

// Params are the values a query's $ parameters refer to.
type Params struct {
	Positional []any          // $0, $1, ...
	Named      map[string]any // $name

	// InstanceType restricts the source to one record type.
	InstanceType reflect.Type
}

// Engine parses and evaluates queries. It is safe for concurrent use.
type Engine struct {
	cache   *lru.Cache[cacheKey, ast.Expression]
	logger  *log.Logger
	factory evaluator.Factory
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, ast.Expression](size)
	if err != nil {
		return nil, fmt.Errorf("creating parse cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	factory := opts.Factory
	if factory == nil {
		factory = evaluator.NewDefaultFactory()
	}
	return &Engine{cache: cache, logger: logger, factory: factory}, nil
}

// Parse parses text in the given mode, reusing an earlier parse of the
// same text.
func (e *Engine) Parse(mode Mode, text string) (ast.Expression, error) {
	key := cacheKey{mode: mode, text: text}
	if expr, ok := e.cache.Get(key); ok {
		e.logger.Debug("parse cache hit", "mode", mode, "query", text)
		return expr, nil
	}

	var expr ast.Expression
	var err error
	if mode == ModePredicate {
		expr, err = parser.ParsePredicate(text)
	} else {
		expr, err = parser.ParseQuery(text)
	}
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, expr)
	e.logger.Debug("parse cache miss", "mode", mode, "query", text, "cached", e.cache.Len())
	return expr, nil
}

// Format returns the canonical text of a query.
func (e *Engine) Format(mode Mode, text string) (string, error) {
	expr, err := e.Parse(mode, text)
	if err != nil {
		return "", err
	}
	return expr.String(), nil
}

func (e *Engine) context(src any, params Params) *evaluator.Context {
	return &evaluator.Context{
		Source:       src,
		InstanceType: params.InstanceType,
		Parameters:   params.Positional,
		Named:        params.Named,
		Factory:      e.factory,
		Logger:       e.logger,
	}
}

// Query evaluates a context query against src and returns its result as
// a lazy iterator. The iterator stops with ctx's error once ctx is done.
// The result implements io.Closer; cursors the query opened on src are
// released when it is exhausted or closed.
func (e *Engine) Query(ctx context.Context, text string, src any, params Params) (iterator.Iterator, error) {
	res, err := e.query(ctx, text, src, params)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) query(ctx context.Context, text string, src any, params Params) (*results, error) {
	expr, err := e.Parse(ModeQuery, text)
	if err != nil {
		return nil, err
	}
	tracked, p := track(src)
	it, err := evaluator.EvaluateAsIterator(expr, e.context(tracked, params), nil)
	if err != nil {
		p.Close()
		return nil, annotate(err, text)
	}
	return &results{ctx: ctx, next: it.Next, text: text, passes: p}, nil
}

// Evaluate evaluates a context query against src and returns its value
// without converting it to an iterator, for queries such as
// everything.exists(...) that produce a single value. A lazy result is
// collected into a slice before the source is released.
func (e *Engine) Evaluate(text string, src any, params Params) (any, error) {
	expr, err := e.Parse(ModeQuery, text)
	if err != nil {
		return nil, err
	}
	tracked, p := track(src)
	defer p.Close()

	v, err := evaluator.Evaluate(expr, e.context(tracked, params), nil)
	if err == nil {
		if it, ok := v.(iterator.Iterator); ok {
			v, err = iterator.Collect(it)
		}
	}
	if err != nil {
		return nil, annotate(err, text)
	}
	return v, nil
}

// Collect runs a context query and drains its result.
func (e *Engine) Collect(ctx context.Context, text string, src any, params Params) ([]any, error) {
	start := time.Now()
	res, err := e.query(ctx, text, src, params)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	out, err := iterator.Collect(res)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query complete", "query", text, "results", len(out), "elapsed", time.Since(start))
	return out, nil
}

// Match tests one candidate against a predicate.
func (e *Engine) Match(text string, candidate any, params Params) (bool, error) {
	expr, err := e.Parse(ModePredicate, text)
	if err != nil {
		return false, err
	}
	ok, err := evaluator.Match(expr, e.context(nil, params), candidate)
	if err != nil {
		return false, annotate(err, text)
	}
	return ok, nil
}

// Filter returns the elements of src that satisfy a predicate, lazily.
// Like Query, the result implements io.Closer.
func (e *Engine) Filter(ctx context.Context, text string, src any, params Params) (iterator.Iterator, error) {
	expr, err := e.Parse(ModePredicate, text)
	if err != nil {
		return nil, err
	}
	tracked, p := track(src)
	it, ok := iterator.Create(tracked)
	if !ok {
		p.Close()
		return nil, fmt.Errorf("cannot iterate over %T", src)
	}
	ectx := e.context(nil, params)
	next := func() (any, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := it.Next()
			if err != nil {
				return nil, err
			}
			ok, err := evaluator.Match(expr, ectx, v)
			if err != nil {
				return nil, err
			}
			if ok {
				return v, nil
			}
		}
	}
	return &results{ctx: ctx, next: next, text: text, passes: p}, nil
}

// annotate attaches the query text to evaluation errors and wraps source
// failures.
func annotate(err error, text string) error {
	var qe *perrors.QueryError
	if errors.As(err, &qe) {
		if qe.Query == "" {
			return qe.WithQuery(text)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return perrors.Wrap("SOURCE-0001", err, nil).WithQuery(text)
}
