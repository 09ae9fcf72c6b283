package evaluator

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sambeau/iuql/pkg/iuql/iterator"
)

// Set is an insertion-ordered set safe for concurrent use. It is what
// set() constructs and what unique(cache) and traverse record visited
// elements in; a Set shared between evaluations lets a later evaluation
// skip what an earlier one produced.
type Set struct {
	mu    sync.Mutex
	keys  map[any]struct{}
	items []any
}

// NewSet returns a set holding items.
func NewSet(items ...any) *Set {
	s := &Set{keys: make(map[any]struct{}, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// setKey maps a value to a comparable key.
func setKey(v any) any {
	v = normalize(v)
	if k, ok := v.(Keyed); ok {
		return k.Key()
	}
	if v == nil || reflect.TypeOf(v).Comparable() {
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Add inserts v and reports whether it was not already present.
func (s *Set) Add(v any) bool {
	key := setKey(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports whether v is in the set.
func (s *Set) Contains(v any) bool {
	key := setKey(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of elements.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a snapshot of the elements in insertion order.
func (s *Set) Items() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.items...)
}

// Iterator iterates over a snapshot of the set.
func (s *Set) Iterator() iterator.Iterator {
	return iterator.FromSlice(s.Items())
}

func (s *Set) String() string {
	return fmt.Sprint(s.Items())
}
