// Package capability indexes the capabilities provided by a snapshot of
// installable units so requirement queries avoid a pairwise scan.
package capability

import (
	"fmt"

	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/metadata"
)

// Matcher is a requirement that cannot be looked up by capability name.
// The index answers it with a scan.
type Matcher interface {
	IsMatch(candidate any) bool
}

type entry struct {
	unit *metadata.InstallableUnit
	cap  metadata.ProvidedCapability
}

// slot holds the providers of one capability name. Most names have a
// single provider, so the first lives inline.
type slot struct {
	first entry
	more  []entry
}

func (s *slot) each(f func(entry)) {
	f(s.first)
	for _, e := range s.more {
		f(e)
	}
}

// Index maps capability names to the units providing them. It is
// read-only once built and safe for concurrent queries.
type Index struct {
	byName map[string]*slot
	units  []*metadata.InstallableUnit
}

// New builds an index from a snapshot of src. Values that are not
// installable units are skipped.
func New(src iterator.Iterator) (*Index, error) {
	var units []*metadata.InstallableUnit
	for {
		v, err := src.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if iu, ok := v.(*metadata.InstallableUnit); ok {
			units = append(units, iu)
		}
	}
	return FromUnits(units), nil
}

// FromUnits builds an index over units.
func FromUnits(units []*metadata.InstallableUnit) *Index {
	x := &Index{byName: make(map[string]*slot), units: units}
	for _, iu := range units {
		for _, pc := range iu.ProvidedCapabilities {
			e := entry{unit: iu, cap: pc}
			if s, ok := x.byName[pc.Name]; ok {
				s.more = append(s.more, e)
			} else {
				x.byName[pc.Name] = &slot{first: e}
			}
		}
	}
	return x
}

// Len returns the number of indexed units.
func (x *Index) Len() int {
	return len(x.units)
}

// matches returns the units satisfying one requirement, in index order and
// without duplicates.
func (x *Index) matches(req any) ([]*metadata.InstallableUnit, error) {
	var out []*metadata.InstallableUnit
	seen := make(map[*metadata.InstallableUnit]bool)
	add := func(iu *metadata.InstallableUnit) {
		if !seen[iu] {
			seen[iu] = true
			out = append(out, iu)
		}
	}

	switch r := req.(type) {
	case *metadata.Requirement:
		if s, ok := x.byName[r.Name]; ok {
			s.each(func(e entry) {
				if r.SatisfiedBy(e.cap) {
					add(e.unit)
				}
			})
		}
	case Matcher:
		for _, iu := range x.units {
			if r.IsMatch(iu) {
				add(iu)
			}
		}
	default:
		return nil, fmt.Errorf("capability index: %T is not a requirement", req)
	}
	return out, nil
}

// SatisfiesAny returns the units satisfying at least one of reqs, in
// first-seen order.
func (x *Index) SatisfiesAny(reqs []any) ([]*metadata.InstallableUnit, error) {
	var out []*metadata.InstallableUnit
	seen := make(map[*metadata.InstallableUnit]bool)
	for _, req := range reqs {
		found, err := x.matches(req)
		if err != nil {
			return nil, err
		}
		for _, iu := range found {
			if !seen[iu] {
				seen[iu] = true
				out = append(out, iu)
			}
		}
	}
	return out, nil
}

// SatisfiesAll returns the units satisfying every one of reqs, in the
// order the first requirement found them. No requirements yields no
// units.
func (x *Index) SatisfiesAll(reqs []any) ([]*metadata.InstallableUnit, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	working, err := x.matches(reqs[0])
	if err != nil {
		return nil, err
	}
	for _, req := range reqs[1:] {
		if len(working) == 0 {
			return nil, nil
		}
		found, err := x.matches(req)
		if err != nil {
			return nil, err
		}
		keep := make(map[*metadata.InstallableUnit]bool, len(found))
		for _, iu := range found {
			keep[iu] = true
		}
		next := working[:0:0]
		for _, iu := range working {
			if keep[iu] {
				next = append(next, iu)
			}
		}
		working = next
	}
	return working, nil
}
