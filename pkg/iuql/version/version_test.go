package version

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"", Empty},
		{"1", Version{Major: 1}},
		{"1.2", Version{Major: 1, Minor: 2}},
		{"1.2.3", Version{Major: 1, Minor: 2, Micro: 3}},
		{"3.4.0.v20240101-1200", Version{Major: 3, Minor: 4, Qualifier: "v20240101-1200"}},
		{" 2.0 ", Version{Major: 2}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"x", "1.x", "1..2", "-1", "1.2.3.", "1.2.3.a b", "1.2.3.q!"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0", 0},
		{"1.0", "2.0", -1},
		{"1.10", "1.9", 1},
		{"1.0.0.a", "1.0.0", 1},
		{"1.0.0.a", "1.0.0.b", -1},
		{"2", "1.99.99.zzz", 1},
	}

	for _, tt := range tests {
		if got := MustParse(tt.a).Compare(MustParse(tt.b)); got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRangeIncludes(t *testing.T) {
	tests := []struct {
		rng     string
		version string
		want    bool
	}{
		{"[1.0,2.0)", "1.0", true},
		{"[1.0,2.0)", "1.5.3", true},
		{"[1.0,2.0)", "2.0", false},
		{"[1.0,2.0]", "2.0", true},
		{"(1.0,2.0)", "1.0", false},
		{"(1.0,2.0)", "1.0.0.a", true},
		{"1.5", "1.4", false},
		{"1.5", "99", true},
		{"", "0", true},
		{"[1.0,)", "5.0", true},
		{"(1.0,)", "1.0", false},
	}

	for _, tt := range tests {
		r := MustParseRange(tt.rng)
		if got := r.Includes(MustParse(tt.version)); got != tt.want {
			t.Errorf("%q includes %s = %v, want %v", tt.rng, tt.version, got, tt.want)
		}
	}
}

func TestRangeErrors(t *testing.T) {
	for _, input := range []string{"[1.0", "[1.0 2.0]", "[2.0,1.0]", "[1.0,1.0)", "[x,2]"} {
		if _, err := ParseRange(input); err == nil {
			t.Errorf("ParseRange(%q) should fail", input)
		}
	}
}

func TestRangeString(t *testing.T) {
	tests := map[string]string{
		"[1.0,2.0)": "[1.0.0,2.0.0)",
		"(1,2]":     "(1.0.0,2.0.0]",
		"1.5":       "1.5.0",
		"(1.0,)":    "(1.0.0,)",
	}
	for input, want := range tests {
		r := MustParseRange(input)
		if got := r.String(); got != want {
			t.Errorf("ParseRange(%q).String() = %q, want %q", input, got, want)
		}
		if again := MustParseRange(r.String()); again != r {
			t.Errorf("String() of %q does not round-trip", input)
		}
	}
}

func TestRangeIntersect(t *testing.T) {
	tests := []struct {
		a, b string
		want string
		ok   bool
	}{
		{"[1.0,3.0)", "[2.0,4.0)", "[2.0.0,3.0.0)", true},
		{"1.0", "[0.5,2.0]", "[1.0.0,2.0.0]", true},
		{"[1.0,2.0)", "[2.0,3.0)", "", false},
		{"1.0", "2.0", "2.0.0", true},
	}

	for _, tt := range tests {
		got, ok := MustParseRange(tt.a).Intersect(MustParseRange(tt.b))
		if ok != tt.ok {
			t.Errorf("%s ∩ %s ok = %v, want %v", tt.a, tt.b, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("%s ∩ %s = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTextMarshalling(t *testing.T) {
	var doc struct {
		Version Version `json:"version"`
		Range   Range   `json:"range"`
	}
	if err := json.Unmarshal([]byte(`{"version":"1.2.3.qual","range":"[1,2)"}`), &doc); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if doc.Version != MustParse("1.2.3.qual") || doc.Range != MustParseRange("[1,2)") {
		t.Errorf("decoded = %+v", doc)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(out) != `{"version":"1.2.3.qual","range":"[1.0.0,2.0.0)"}` {
		t.Errorf("Marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"version":"bad.version"}`), &doc); err == nil {
		t.Errorf("invalid version should fail to decode")
	}
}
