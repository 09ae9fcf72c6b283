package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/iuql/pkg/iuql/repo"
)

// databasePrefixes mark locations that name a database rather than a
// document on disk.
var databasePrefixes = []string{"sqlite:", "postgres://", "postgresql://", "mysql:"}

// Location is where a repository's units are read from: a document path,
// sqlite:<path>, a postgres URL, or mysql:<dsn>. Printing a Location never
// shows a database password. A location tagged !secret is not shown at
// all.
type Location struct {
	dsn    string
	hidden bool
}

// NewLocation returns an untagged location.
func NewLocation(dsn string) Location {
	return Location{dsn: dsn}
}

// DSN returns the location as given to repo.Open.
func (l Location) DSN() string {
	return l.dsn
}

// Hidden reports whether the location was tagged !secret.
func (l Location) Hidden() bool {
	return l.hidden
}

// IsDatabase reports whether the location names a database.
func (l Location) IsDatabase() bool {
	for _, prefix := range databasePrefixes {
		if strings.HasPrefix(l.dsn, prefix) {
			return true
		}
	}
	return false
}

func (l Location) String() string {
	if l.hidden && l.dsn != "" {
		return "[hidden]"
	}
	return repo.Redact(l.dsn)
}

// UnmarshalYAML reads a location scalar, noting the !secret tag.
func (l *Location) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: location must be a string", node.Line)
	}
	l.dsn = node.Value
	l.hidden = node.Tag == "!secret"
	return nil
}

// resolve makes document and sqlite paths absolute against baseDir.
// Network locations are returned unchanged.
func (l Location) resolve(baseDir string) Location {
	switch {
	case l.dsn == "", baseDir == "":
		return l
	case strings.HasPrefix(l.dsn, "sqlite:"):
		path := strings.TrimPrefix(l.dsn, "sqlite:")
		if path != ":memory:" && !filepath.IsAbs(path) {
			l.dsn = "sqlite:" + filepath.Join(baseDir, path)
		}
		return l
	case l.IsDatabase(), filepath.IsAbs(l.dsn):
		return l
	}
	l.dsn = filepath.Join(baseDir, l.dsn)
	return l
}
