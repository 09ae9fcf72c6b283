package query

import (
	"context"
	"io"
	"sync"

	"github.com/sambeau/iuql/pkg/iuql/iterator"
)

// passes records the cursors one evaluation opens on its source. Queries
// such as exists or first stop reading early, so a database cursor is
// only released when the evaluation closes its passes.
type passes struct {
	mu    sync.Mutex
	store iterator.Iterable
	open  []io.Closer
}

// track returns the source an evaluation should read and the passes that
// release it. A one-shot iterator that holds a cursor is closed as is; a
// re-iterable store is wrapped so each traversal it hands out is recorded.
func track(src any) (any, *passes) {
	p := &passes{}
	switch s := src.(type) {
	case iterator.Iterator:
		if c, ok := s.(io.Closer); ok {
			p.open = append(p.open, c)
		}
		return src, p
	case iterator.Iterable:
		p.store = s
		return p, p
	}
	return src, p
}

// Iterator starts a traversal of the tracked store.
func (p *passes) Iterator() iterator.Iterator {
	it := p.store.Iterator()
	if c, ok := it.(io.Closer); ok {
		p.mu.Lock()
		p.open = append(p.open, c)
		p.mu.Unlock()
	}
	return it
}

// Close closes every recorded pass and returns the first error.
func (p *passes) Close() error {
	p.mu.Lock()
	open := p.open
	p.open = nil
	p.mu.Unlock()

	var first error
	for _, c := range open {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// results is a lazy query result. The source's passes are released when
// it is exhausted, when it fails, or when it is closed.
type results struct {
	ctx    context.Context
	next   func() (any, error)
	text   string
	passes *passes
}

func (r *results) Next() (any, error) {
	if err := r.ctx.Err(); err != nil {
		r.Close()
		return nil, err
	}
	v, err := r.next()
	if err == nil {
		return v, nil
	}
	r.Close()
	if err == iterator.Done {
		return nil, err
	}
	return nil, annotate(err, r.text)
}

// Close releases the source's cursors. Callers that stop reading before
// Done should close the result.
func (r *results) Close() error {
	return r.passes.Close()
}
