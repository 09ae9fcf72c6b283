// Package repo supplies candidate sources: installable-unit documents on
// disk, optionally compressed, and SQL-backed repositories.
package repo

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/metadata"
)

// Repository is a re-iterable source of installable units.
type Repository interface {
	iterator.Iterable
	Location() string
	Close() error
}

// Open opens the repository at location. Locations take one of the forms
//
//	sqlite:<path>
//	postgres://... or postgresql://...
//	mysql:<dsn>
//	<file>.yaml, <file>.yml or <file>.json, optionally followed by .gz or .zst
func Open(ctx context.Context, location string, logger *log.Logger) (Repository, error) {
	if logger == nil {
		logger = log.Default()
	}

	switch {
	case strings.HasPrefix(location, "sqlite:"):
		return OpenSQL(ctx, "sqlite", strings.TrimPrefix(location, "sqlite:"), logger)
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return OpenSQL(ctx, "postgres", location, logger)
	case strings.HasPrefix(location, "mysql:"):
		return OpenSQL(ctx, "mysql", strings.TrimPrefix(location, "mysql:"), logger)
	}

	m, err := LoadFile(location)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded repository", "location", location, "units", m.Len())
	return m, nil
}

// Memory is a repository held in memory.
type Memory struct {
	location string
	units    []*metadata.InstallableUnit
}

// NewMemory returns a repository over units. Each unit gets its identity
// capability if it lacks one.
func NewMemory(location string, units []*metadata.InstallableUnit) (*Memory, error) {
	for i, iu := range units {
		if iu == nil {
			return nil, fmt.Errorf("%s: unit %d is empty", location, i)
		}
		if err := iu.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		iu.EnsureIdentity()
	}
	return &Memory{location: location, units: units}, nil
}

// Iterator starts a new pass over the units.
func (m *Memory) Iterator() iterator.Iterator {
	items := make([]any, len(m.units))
	for i, iu := range m.units {
		items[i] = iu
	}
	return iterator.FromSlice(items)
}

// Units returns the units in document order.
func (m *Memory) Units() []*metadata.InstallableUnit { return m.units }

// Len returns the number of units.
func (m *Memory) Len() int { return len(m.units) }

// Location returns where the units were loaded from.
func (m *Memory) Location() string { return m.location }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Composite presents several repositories as one. A pass visits each
// repository in turn.
type Composite []Repository

// Iterator starts a new pass over every member repository.
func (c Composite) Iterator() iterator.Iterator {
	return &compositeIterator{members: c}
}

type compositeIterator struct {
	members Composite
	i       int
	cur     iterator.Iterator
}

func (it *compositeIterator) Next() (any, error) {
	for it.i < len(it.members) {
		if it.cur == nil {
			it.cur = it.members[it.i].Iterator()
		}
		v, err := it.cur.Next()
		if err != iterator.Done {
			return v, err
		}
		it.cur = nil
		it.i++
	}
	return nil, iterator.Done
}

// Close releases the member pass in progress, if it holds a cursor.
func (it *compositeIterator) Close() error {
	it.i = len(it.members)
	cur := it.cur
	it.cur = nil
	if c, ok := cur.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Location lists the member locations.
func (c Composite) Location() string {
	locs := make([]string, len(c))
	for i, r := range c {
		locs[i] = r.Location()
	}
	return strings.Join(locs, ", ")
}

// Close closes every member and returns the first error.
func (c Composite) Close() error {
	var first error
	for _, r := range c {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Units drains a repository into a slice. Values that are not units are
// reported as errors.
func Units(r iterator.Iterable) ([]*metadata.InstallableUnit, error) {
	items, err := iterator.Collect(r.Iterator())
	if err != nil {
		return nil, err
	}
	units := make([]*metadata.InstallableUnit, 0, len(items))
	for _, v := range items {
		iu, ok := v.(*metadata.InstallableUnit)
		if !ok {
			return nil, fmt.Errorf("repository yielded %T, not an installable unit", v)
		}
		units = append(units, iu)
	}
	return units, nil
}
