package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/metadata"
)

// schema works unchanged on sqlite, postgres and mysql.
const schema = `
CREATE TABLE IF NOT EXISTS units (
	id VARCHAR(255) NOT NULL,
	version VARCHAR(255) NOT NULL,
	document TEXT NOT NULL,
	PRIMARY KEY (id, version)
)`

var upsert = map[string]string{
	"sqlite":   "INSERT OR REPLACE INTO units (id, version, document) VALUES (?, ?, ?)",
	"mysql":    "REPLACE INTO units (id, version, document) VALUES (?, ?, ?)",
	"postgres": "INSERT INTO units (id, version, document) VALUES (?, ?, ?) ON CONFLICT (id, version) DO UPDATE SET document = EXCLUDED.document",
}

// SQL is a repository stored in a database. Every pass over it runs a
// fresh query and streams the rows.
type SQL struct {
	db       *sql.DB
	driver   string
	location string
	logger   *log.Logger
}

// OpenSQL connects to a database and creates the schema if necessary.
// driver is one of "sqlite", "postgres" or "mysql".
func OpenSQL(ctx context.Context, driver, dsn string, logger *log.Logger) (*SQL, error) {
	if _, ok := upsert[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s repository: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("opened repository", "driver", driver)
	return &SQL{db: db, driver: driver, location: driver + ":" + Redact(dsn), logger: logger}, nil
}

// Redact hides the password in a repository location or connection
// string. Locations without one are returned unchanged.
func Redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userinfo := dsn[:at]
	if colon := strings.LastIndex(userinfo, ":"); colon >= 0 && !strings.HasPrefix(userinfo[colon:], "://") {
		return userinfo[:colon] + ":***" + dsn[at:]
	}
	return dsn
}

// rebind rewrites '?' placeholders for drivers that number them.
func (s *SQL) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Import stores units, replacing stored units with the same id and
// version. It returns the number of units written.
func (s *SQL) Import(ctx context.Context, units []*metadata.InstallableUnit) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(upsert[s.driver]))
	if err != nil {
		return 0, fmt.Errorf("preparing import: %w", err)
	}
	defer stmt.Close()

	for _, iu := range units {
		if err := iu.Validate(); err != nil {
			return 0, err
		}
		iu.EnsureIdentity()
		doc, err := json.Marshal(iu)
		if err != nil {
			return 0, fmt.Errorf("encoding %s: %w", iu, err)
		}
		if _, err := stmt.ExecContext(ctx, iu.ID, iu.Version.String(), string(doc)); err != nil {
			return 0, fmt.Errorf("storing %s: %w", iu, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	s.logger.Debug("imported units", "location", s.location, "units", len(units))
	return len(units), nil
}

// Count returns the number of stored units.
func (s *SQL) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting units: %w", err)
	}
	return n, nil
}

// Rows returns a one-shot iterator over the stored units, ordered by id
// and version text. The query runs on the first call to Next.
func (s *SQL) Rows(ctx context.Context) iterator.Iterator {
	return &rowIterator{s: s, ctx: ctx}
}

// Iterator implements iterator.Iterable.
func (s *SQL) Iterator() iterator.Iterator {
	return s.Rows(context.Background())
}

// Location returns the driver and the redacted connection string.
func (s *SQL) Location() string { return s.location }

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

type rowIterator struct {
	s    *SQL
	ctx  context.Context
	rows *sql.Rows
	done bool
}

func (it *rowIterator) Next() (any, error) {
	if it.done {
		return nil, iterator.Done
	}
	if it.rows == nil {
		rows, err := it.s.db.QueryContext(it.ctx, "SELECT document FROM units ORDER BY id, version")
		if err != nil {
			it.done = true
			return nil, fmt.Errorf("querying units: %w", err)
		}
		it.rows = rows
	}

	if !it.rows.Next() {
		it.done = true
		err := it.rows.Err()
		it.rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading units: %w", err)
		}
		return nil, iterator.Done
	}

	var doc string
	if err := it.rows.Scan(&doc); err != nil {
		it.done = true
		it.rows.Close()
		return nil, fmt.Errorf("reading unit: %w", err)
	}
	var iu metadata.InstallableUnit
	if err := json.Unmarshal([]byte(doc), &iu); err != nil {
		it.done = true
		it.rows.Close()
		return nil, fmt.Errorf("decoding unit: %w", err)
	}
	return &iu, nil
}

// Close releases the cursor. Next reports Done afterwards.
func (it *rowIterator) Close() error {
	it.done = true
	if it.rows == nil {
		return nil
	}
	return it.rows.Close()
}
