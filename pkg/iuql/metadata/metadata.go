// Package metadata defines the installable-unit records IUQL queries run
// against: units, the capabilities they provide and the requirements
// they declare.
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sambeau/iuql/pkg/iuql/filter"
	"github.com/sambeau/iuql/pkg/iuql/version"
)

// Well-known capability namespaces.
const (
	NamespaceIU      = "org.eclipse.equinox.p2.iu"
	NamespacePackage = "java.package"
	NamespaceBundle  = "osgi.bundle"
)

// Well-known properties.
const (
	PropName     = "org.eclipse.equinox.p2.name"
	PropProvider = "org.eclipse.equinox.p2.provider"
	PropType     = "org.eclipse.equinox.p2.type.group"
)

// ProvidedCapability is a named, versioned contract a unit offers.
type ProvidedCapability struct {
	Namespace string          `yaml:"namespace" json:"namespace"`
	Name      string          `yaml:"name" json:"name"`
	Version   version.Version `yaml:"version" json:"version"`
}

func (pc ProvidedCapability) String() string {
	return pc.Namespace + "; " + pc.Name + " " + pc.Version.String()
}

// Requirement asks for a capability in a namespace, by name and version
// range. Filter, when set, restricts the environments the requirement
// applies to.
type Requirement struct {
	Namespace string         `yaml:"namespace" json:"namespace"`
	Name      string         `yaml:"name" json:"name"`
	Range     version.Range  `yaml:"range" json:"range"`
	Filter    *filter.Filter `yaml:"filter,omitempty" json:"filter,omitempty"`
	Min       int            `yaml:"min" json:"min"`
	Max       int            `yaml:"max" json:"max"`
	Greedy    bool           `yaml:"greedy" json:"greedy"`
}

// NewRequirement returns a mandatory, greedy requirement.
func NewRequirement(namespace, name string, rng version.Range) *Requirement {
	return &Requirement{Namespace: namespace, Name: name, Range: rng, Min: 1, Max: 1, Greedy: true}
}

// IsOptional reports whether the requirement may go unsatisfied.
func (r *Requirement) IsOptional() bool {
	return r.Min == 0
}

// SatisfiedBy reports whether capability pc satisfies the requirement.
func (r *Requirement) SatisfiedBy(pc ProvidedCapability) bool {
	return pc.Name == r.Name && pc.Namespace == r.Namespace && r.Range.Includes(pc.Version)
}

// IsMatch reports whether candidate is an installable unit providing a
// capability that satisfies the requirement.
func (r *Requirement) IsMatch(candidate any) bool {
	iu, ok := candidate.(*InstallableUnit)
	if !ok {
		return false
	}
	for _, pc := range iu.ProvidedCapabilities {
		if r.SatisfiedBy(pc) {
			return true
		}
	}
	return false
}

func (r *Requirement) String() string {
	s := r.Namespace + "; " + r.Name + " " + r.Range.String()
	if r.Filter != nil {
		s += " " + r.Filter.String()
	}
	return s
}

// InstallableUnit is the record type queries select over.
type InstallableUnit struct {
	ID                   string               `yaml:"id" json:"id"`
	Version              version.Version      `yaml:"version" json:"version"`
	Singleton            bool                 `yaml:"singleton,omitempty" json:"singleton,omitempty"`
	Properties           map[string]string    `yaml:"properties,omitempty" json:"properties,omitempty"`
	ProvidedCapabilities []ProvidedCapability `yaml:"provides,omitempty" json:"provides,omitempty"`
	Requirements         []*Requirement       `yaml:"requires,omitempty" json:"requires,omitempty"`
	Filter               *filter.Filter       `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// NewUnit returns a unit that provides its own identity capability.
func NewUnit(id string, v version.Version) *InstallableUnit {
	return &InstallableUnit{
		ID:                   id,
		Version:              v,
		ProvidedCapabilities: []ProvidedCapability{{Namespace: NamespaceIU, Name: id, Version: v}},
	}
}

// GetID returns the unit id.
func (iu *InstallableUnit) GetID() string { return iu.ID }

// GetVersion returns the unit version.
func (iu *InstallableUnit) GetVersion() version.Version { return iu.Version }

// Property returns a single property without copying the property map.
func (iu *InstallableUnit) Property(key string) (any, bool) {
	v, ok := iu.Properties[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// Key identifies the unit by id and version.
func (iu *InstallableUnit) Key() any {
	return unitKey{id: iu.ID, version: iu.Version}
}

type unitKey struct {
	id      string
	version version.Version
}

// Provides reports whether the unit offers a capability satisfying r.
func (iu *InstallableUnit) Provides(r *Requirement) bool {
	return r.IsMatch(iu)
}

// EnsureIdentity adds the identity capability when it is missing.
func (iu *InstallableUnit) EnsureIdentity() {
	for _, pc := range iu.ProvidedCapabilities {
		if pc.Namespace == NamespaceIU && pc.Name == iu.ID {
			return
		}
	}
	iu.ProvidedCapabilities = append(iu.ProvidedCapabilities, ProvidedCapability{Namespace: NamespaceIU, Name: iu.ID, Version: iu.Version})
}

// Validate checks the fields a unit must have.
func (iu *InstallableUnit) Validate() error {
	if strings.TrimSpace(iu.ID) == "" {
		return fmt.Errorf("installable unit has no id")
	}
	for i, r := range iu.Requirements {
		if r == nil || r.Name == "" || r.Namespace == "" {
			return fmt.Errorf("unit %s: requirement %d needs a namespace and a name", iu.ID, i)
		}
	}
	return nil
}

func (iu *InstallableUnit) String() string {
	return iu.ID + " " + iu.Version.String()
}

// SortUnits orders units by id, then by descending version.
func SortUnits(units []*InstallableUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].ID != units[j].ID {
			return units[i].ID < units[j].ID
		}
		return units[i].Version.Compare(units[j].Version) > 0
	})
}
