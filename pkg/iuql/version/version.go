// Package version implements OSGi-style versions and version ranges.
//
// A version is major.minor.micro.qualifier; missing numeric segments are
// zero and the qualifier compares as a plain string. A range is written
// [a,b], [a,b), (a,b] or (a,b), and a bare version a means a or greater.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable, comparable version value.
type Version struct {
	Major     int
	Minor     int
	Micro     int
	Qualifier string
}

// Empty is 0.0.0, the lowest version.
var Empty = Version{}

// Parse parses a version string.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}

	parts := strings.SplitN(s, ".", 4)
	var v Version
	nums := []*int{&v.Major, &v.Minor, &v.Micro}
	for i, part := range parts {
		if i == 3 {
			if !validQualifier(part) {
				return Empty, fmt.Errorf("invalid version %q: bad qualifier %q", s, part)
			}
			v.Qualifier = part
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strings.HasPrefix(part, "+") {
			return Empty, fmt.Errorf("invalid version %q: segment %q is not a non-negative integer", s, part)
		}
		*nums[i] = n
	}
	return v, nil
}

func validQualifier(q string) bool {
	if q == "" {
		return false
	}
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	for _, d := range [...]int{v.Major - o.Major, v.Minor - o.Minor, v.Micro - o.Micro} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return strings.Compare(v.Qualifier, o.Qualifier)
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Qualifier != "" {
		s += "." + v.Qualifier
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Range is an interval of versions. An unbounded range has no maximum.
type Range struct {
	Min        Version
	IncludeMin bool
	Max        Version
	IncludeMax bool
	Unbounded  bool
}

// Everything is the range that includes every version.
var Everything = Range{Min: Empty, IncludeMin: true, Unbounded: true}

// ParseRange parses a range string.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Everything, nil
	}

	if s[0] != '[' && s[0] != '(' {
		min, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Min: min, IncludeMin: true, Unbounded: true}, nil
	}

	last := s[len(s)-1]
	if last != ']' && last != ')' {
		return Range{}, fmt.Errorf("invalid range %q: missing closing bracket", s)
	}
	lo, hi, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q: missing ','", s)
	}

	min, err := Parse(lo)
	if err != nil {
		return Range{}, err
	}
	if strings.TrimSpace(hi) == "" {
		return Range{Min: min, IncludeMin: s[0] == '[', Unbounded: true}, nil
	}
	max, err := Parse(hi)
	if err != nil {
		return Range{}, err
	}

	r := Range{Min: min, IncludeMin: s[0] == '[', Max: max, IncludeMax: last == ']'}
	if c := min.Compare(max); c > 0 || (c == 0 && !(r.IncludeMin && r.IncludeMax)) {
		return Range{}, fmt.Errorf("invalid range %q: empty interval", s)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Includes reports whether v lies inside the range.
func (r Range) Includes(v Version) bool {
	c := v.Compare(r.Min)
	if c < 0 || (c == 0 && !r.IncludeMin) {
		return false
	}
	if r.Unbounded {
		return true
	}
	c = v.Compare(r.Max)
	return c < 0 || (c == 0 && r.IncludeMax)
}

// Intersect returns the overlap of two ranges and whether it is non-empty.
func (r Range) Intersect(o Range) (Range, bool) {
	out := r
	if c := o.Min.Compare(r.Min); c > 0 || (c == 0 && !o.IncludeMin) {
		out.Min, out.IncludeMin = o.Min, o.IncludeMin
	}
	switch {
	case o.Unbounded:
	case r.Unbounded:
		out.Max, out.IncludeMax, out.Unbounded = o.Max, o.IncludeMax, false
	default:
		if c := o.Max.Compare(r.Max); c < 0 || (c == 0 && !o.IncludeMax) {
			out.Max, out.IncludeMax = o.Max, o.IncludeMax
		}
	}
	if !out.Unbounded {
		c := out.Min.Compare(out.Max)
		if c > 0 || (c == 0 && !(out.IncludeMin && out.IncludeMax)) {
			return Range{}, false
		}
	}
	return out, true
}

func (r Range) String() string {
	if r.Unbounded && r.IncludeMin {
		return r.Min.String()
	}
	var sb strings.Builder
	if r.IncludeMin {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('(')
	}
	sb.WriteString(r.Min.String())
	sb.WriteByte(',')
	if r.Unbounded {
		sb.WriteString(")")
		return sb.String()
	}
	sb.WriteString(r.Max.String())
	if r.IncludeMax {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
