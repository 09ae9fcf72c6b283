package metadata

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/iuql/pkg/iuql/version"
)

func TestRequirementMatch(t *testing.T) {
	iu := NewUnit("org.example.core", version.MustParse("1.2.0"))
	iu.ProvidedCapabilities = append(iu.ProvidedCapabilities,
		ProvidedCapability{Namespace: NamespacePackage, Name: "org.example.api", Version: version.MustParse("3.0")})

	tests := []struct {
		name string
		req  *Requirement
		want bool
	}{
		{"identity in range", NewRequirement(NamespaceIU, "org.example.core", version.MustParseRange("[1.0,2.0)")), true},
		{"identity out of range", NewRequirement(NamespaceIU, "org.example.core", version.MustParseRange("[2.0,3.0)")), false},
		{"package", NewRequirement(NamespacePackage, "org.example.api", version.MustParseRange("3.0")), true},
		{"wrong namespace", NewRequirement(NamespaceBundle, "org.example.api", version.Everything), false},
		{"wrong name", NewRequirement(NamespaceIU, "org.other", version.Everything), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.IsMatch(iu); got != tt.want {
				t.Errorf("IsMatch() = %v, want %v", got, tt.want)
			}
			if got := iu.Provides(tt.req); got != tt.want {
				t.Errorf("Provides() = %v, want %v", got, tt.want)
			}
		})
	}

	if NewRequirement(NamespaceIU, "x", version.Everything).IsMatch("not a unit") {
		t.Errorf("a non-unit candidate must not match")
	}
}

func TestUnitAccessors(t *testing.T) {
	iu := NewUnit("a", version.MustParse("1"))
	iu.Properties = map[string]string{PropName: "Alpha"}

	if v, ok := iu.Property(PropName); !ok || v != "Alpha" {
		t.Errorf("Property() = %v, %v", v, ok)
	}
	if _, ok := iu.Property("missing"); ok {
		t.Errorf("missing property should not be found")
	}

	same := NewUnit("a", version.MustParse("1.0.0"))
	if iu.Key() != same.Key() {
		t.Errorf("units with equal id and version should share a key")
	}
	if iu.Key() == NewUnit("a", version.MustParse("2")).Key() {
		t.Errorf("different versions must not share a key")
	}
}

func TestEnsureIdentityAndValidate(t *testing.T) {
	iu := &InstallableUnit{ID: "b", Version: version.MustParse("2")}
	iu.EnsureIdentity()
	iu.EnsureIdentity()
	if len(iu.ProvidedCapabilities) != 1 {
		t.Fatalf("capabilities = %v", iu.ProvidedCapabilities)
	}
	if err := iu.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	iu.Requirements = []*Requirement{{Namespace: NamespaceIU}}
	if err := iu.Validate(); err == nil {
		t.Errorf("a requirement without a name should fail validation")
	}
	if err := (&InstallableUnit{}).Validate(); err == nil {
		t.Errorf("a unit without an id should fail validation")
	}
}

func TestYAMLDecoding(t *testing.T) {
	doc := `
id: org.example.ui
version: 1.4.0.v2024
singleton: true
properties:
  org.eclipse.equinox.p2.name: Example UI
provides:
  - namespace: osgi.bundle
    name: org.example.ui
    version: 1.4.0.v2024
requires:
  - namespace: osgi.bundle
    name: org.example.core
    range: "[1.0,2.0)"
    filter: (osgi.os=linux)
    min: 1
    max: 1
`
	var iu InstallableUnit
	if err := yaml.Unmarshal([]byte(doc), &iu); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if iu.Version != version.MustParse("1.4.0.v2024") || !iu.Singleton {
		t.Errorf("unit = %+v", iu)
	}
	if len(iu.Requirements) != 1 {
		t.Fatalf("requirements = %v", iu.Requirements)
	}
	req := iu.Requirements[0]
	if req.Range != version.MustParseRange("[1.0,2.0)") {
		t.Errorf("range = %v", req.Range)
	}
	if req.Filter == nil || !req.Filter.Match(map[string]string{"osgi.os": "linux"}) {
		t.Errorf("filter = %v", req.Filter)
	}
}

func TestSortUnits(t *testing.T) {
	units := []*InstallableUnit{
		NewUnit("b", version.MustParse("1")),
		NewUnit("a", version.MustParse("1")),
		NewUnit("a", version.MustParse("2")),
	}
	SortUnits(units)

	want := []string{"a 2.0.0", "a 1.0.0", "b 1.0.0"}
	for i, u := range units {
		if u.String() != want[i] {
			t.Errorf("units[%d] = %s, want %s", i, u, want[i])
		}
	}
}
