// Package iterator provides the lazy sequences the evaluator works on.
//
// Sources come in three shapes. Re-iterable stores (an Iterable or a
// slice) hand out a fresh cursor per pass. One-shot sources (a bare
// Iterator, such as a database cursor) are wrapped in a shared buffer so
// later passes replay what earlier ones saw. Pre-materialized slices are
// read in place when the caller needs only a single pass.
package iterator

import (
	"errors"
	"reflect"
)

// Done is returned by Next when a sequence is exhausted.
var Done = errors.New("no more items in iterator")

// Iterator yields values until it returns Done or another error.
type Iterator interface {
	Next() (any, error)
}

// Repeatable is an Iterator that can produce a fresh pass over the same
// logical sequence. Copy always starts from the beginning; the copy and
// the original advance independently.
type Repeatable interface {
	Iterator
	Copy() Repeatable
}

// Iterable is a re-iterable store. Each call to Iterator starts a new
// traversal.
type Iterable interface {
	Iterator() Iterator
}

// Func adapts a function to the Iterator interface.
type Func func() (any, error)

// Next calls f.
func (f Func) Next() (any, error) { return f() }

// Empty returns an exhausted iterator.
func Empty() Repeatable {
	return FromSlice(nil)
}

// Single returns a repeatable iterator over one value.
func Single(v any) Repeatable {
	return FromSlice([]any{v})
}

// Create returns an iterator for a single read-only pass over v. An
// Iterator is returned as is, an Iterable is asked for a new traversal and
// a slice or array is read in place. The second result is false when v is
// not iterable.
func Create(v any) (Iterator, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case Iterator:
		return s, true
	case Iterable:
		return s.Iterator(), true
	case []any:
		return FromSlice(s), true
	}
	if rv, ok := sliceValue(v); ok {
		return &reflectSlice{v: rv}, true
	}
	return nil, false
}

// Repeat returns a Repeatable over v. A Repeatable is returned as is; an
// Iterable or a slice becomes a store that is re-traversed on Copy; any
// other Iterator is treated as one-shot and buffered.
func Repeat(v any) (Repeatable, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case Repeatable:
		return s, true
	case Iterable:
		return &iterable{store: s, it: s.Iterator()}, true
	case Iterator:
		return Buffer(s), true
	case []any:
		return FromSlice(s), true
	}
	if rv, ok := sliceValue(v); ok {
		return &reflectSlice{v: rv}, true
	}
	return nil, false
}

// IsIterable reports whether Create would accept v.
func IsIterable(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case Iterator, Iterable, []any:
		return true
	}
	_, ok := sliceValue(v)
	return ok
}

func sliceValue(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return reflect.Value{}, false
		}
		return rv, true
	}
	return reflect.Value{}, false
}

// Collect drains it into a slice.
func Collect(it Iterator) ([]any, error) {
	var out []any
	for {
		v, err := it.Next()
		if err == Done {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// FromSlice returns a repeatable iterator over items. The slice is not
// copied.
func FromSlice(items []any) Repeatable {
	return &slice{items: items}
}

type slice struct {
	items []any
	pos   int
}

func (s *slice) Next() (any, error) {
	if s.pos >= len(s.items) {
		return nil, Done
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

func (s *slice) Copy() Repeatable { return &slice{items: s.items} }

// reflectSlice walks a typed slice or array.
type reflectSlice struct {
	v   reflect.Value
	pos int
}

func (s *reflectSlice) Next() (any, error) {
	if s.pos >= s.v.Len() {
		return nil, Done
	}
	v := s.v.Index(s.pos).Interface()
	s.pos++
	return v, nil
}

func (s *reflectSlice) Copy() Repeatable { return &reflectSlice{v: s.v} }

// iterable walks a re-iterable store; Copy starts a new traversal.
type iterable struct {
	store Iterable
	it    Iterator
}

func (i *iterable) Next() (any, error) { return i.it.Next() }

func (i *iterable) Copy() Repeatable {
	return &iterable{store: i.store, it: i.store.Iterator()}
}

// Buffer wraps a one-shot source. Every value read from src is appended
// to a buffer shared by all copies, so each copy replays the sequence in
// the order it was first observed.
func Buffer(src Iterator) Repeatable {
	return &cursor{buf: &buffer{src: src}}
}

type buffer struct {
	src   Iterator
	items []any
	err   error // Done once src is exhausted
}

// fill reads one more value from the source into the buffer.
func (b *buffer) fill() {
	v, err := b.src.Next()
	if err != nil {
		b.err = err
		b.src = nil
		return
	}
	b.items = append(b.items, v)
}

func (b *buffer) drain() {
	for b.err == nil {
		b.fill()
	}
}

type cursor struct {
	buf *buffer
	pos int
}

func (c *cursor) Next() (any, error) {
	for c.pos >= len(c.buf.items) {
		if c.buf.err != nil {
			return nil, c.buf.err
		}
		c.buf.fill()
	}
	v := c.buf.items[c.pos]
	c.pos++
	return v, nil
}

// Copy drains the rest of the source into the buffer, then returns a
// cursor that replays it from the start.
func (c *cursor) Copy() Repeatable {
	c.buf.drain()
	return &cursor{buf: c.buf}
}
