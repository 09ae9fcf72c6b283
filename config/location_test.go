package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLocationUnmarshal(t *testing.T) {
	var r Repository
	if err := yaml.Unmarshal([]byte("name: db\nlocation: !secret mysql:u:pw@tcp(h)/units\n"), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !r.Location.Hidden() {
		t.Error("expected location to be hidden")
	}
	if r.Location.DSN() != "mysql:u:pw@tcp(h)/units" {
		t.Errorf("unexpected dsn %q", r.Location.DSN())
	}
	if r.Location.String() != "[hidden]" {
		t.Errorf("expected hidden location, got %q", r.Location.String())
	}

	if err := yaml.Unmarshal([]byte("name: file\nlocation: units.yaml\n"), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Location.Hidden() || r.Location.String() != "units.yaml" {
		t.Errorf("expected plain location, got %q", r.Location.String())
	}

	if err := yaml.Unmarshal([]byte("name: bad\nlocation: [a, b]\n"), &r); err == nil {
		t.Error("expected error for a non-scalar location")
	}
}

func TestLocationString(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"units.yaml", "units.yaml"},
		{"sqlite:/data/units.db", "sqlite:/data/units.db"},
		{"postgres://iuql:hunter2@db/units", "postgres://iuql:***@db/units"},
		{"mysql:iuql:hunter2@tcp(db:3306)/units", "mysql:iuql:***@tcp(db:3306)/units"},
	}
	for _, tt := range tests {
		if got := NewLocation(tt.dsn).String(); got != tt.want {
			t.Errorf("NewLocation(%q).String() = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestLocationIsDatabase(t *testing.T) {
	for dsn, want := range map[string]bool{
		"units.yaml":             false,
		"units.json.zst":         false,
		"sqlite:units.db":        true,
		"postgres://u@h/db":      true,
		"postgresql://u@h/db":    true,
		"mysql:u:p@tcp(h)/units": true,
	} {
		if got := NewLocation(dsn).IsDatabase(); got != want {
			t.Errorf("IsDatabase(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		loc  string
		want string
	}{
		{"repo.yaml", "/base/repo.yaml"},
		{"/abs/repo.yaml", "/abs/repo.yaml"},
		{"sqlite:units.db", "sqlite:/base/units.db"},
		{"sqlite::memory:", "sqlite::memory:"},
		{"postgres://u@h/db", "postgres://u@h/db"},
		{"mysql:u:p@tcp(h)/db", "mysql:u:p@tcp(h)/db"},
	}
	for _, tt := range tests {
		if got := NewLocation(tt.loc).resolve("/base").DSN(); got != tt.want {
			t.Errorf("resolve(%q) = %q, want %q", tt.loc, got, tt.want)
		}
	}

	hidden := Location{dsn: "sqlite:units.db", hidden: true}.resolve("/base")
	if !hidden.Hidden() {
		t.Error("resolve dropped the !secret tag")
	}
}
