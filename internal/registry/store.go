package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Version is the registry schema version recorded in the releases table.
const Version = "1.1"

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_mysql.sql
var schemaMySQL string

// Flavor selects the SQL dialect the store speaks.
type Flavor string

const (
	SQLite   Flavor = "sqlite"
	Postgres Flavor = "postgres"
	MySQL    Flavor = "mysql"
)

// Store reads and writes registry state. Safe for sequential use only; the
// orchestrator holds one transaction open at a time by design.
type Store struct {
	db     *sql.DB
	flavor Flavor
	prefix string

	lastNow time.Time
}

// Config wires a Store onto a database provided by an engine adapter.
type Config struct {
	DB *sql.DB

	// Flavor of the underlying engine.
	Flavor Flavor

	// Prefix qualifies registry table names when the registry shares a
	// physical database with the deployment target: an attached-database
	// qualifier for SQLite ("registry."), a schema for Postgres
	// ("strata."), a sibling database for MySQL. Empty means unqualified.
	Prefix string
}

// New creates a Store over an existing connection.
func New(cfg Config) *Store {
	return &Store{db: cfg.DB, flavor: cfg.Flavor, prefix: cfg.Prefix}
}

// OpenSQLite opens (creating if needed) a standalone SQLite registry file.
// Single connection: SQLite allows one writer, and the deploy flow is
// strictly sequential anyway.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect registry: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("registry pragma %q: %w", pragma, err)
		}
	}
	return New(Config{DB: db, Flavor: SQLite}), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for the engine adapter; the registry and
// the target share it in the common case.
func (s *Store) DB() *sql.DB { return s.db }

// Begin opens a transaction on the shared database. One unit of work for a
// change script and its registry row.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registry transaction: %w", err)
	}
	return tx, nil
}

// Initialize creates the registry schema if missing and records the schema
// release. Idempotent.
func (s *Store) Initialize(ctx context.Context, installerName, installerEmail string) error {
	var schema string
	switch s.flavor {
	case Postgres:
		schema = schemaPostgres
	case MySQL:
		schema = schemaMySQL
	default:
		schema = schemaSQLite
	}
	schema = strings.ReplaceAll(schema, "{{p}}", s.prefix)
	for _, stmt := range splitStatements(schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create registry schema: %w", err)
		}
	}

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM `+s.table("releases")+` WHERE version = ?`), Version).Scan(&n)
	if err != nil {
		return fmt.Errorf("query registry release: %w", err)
	}
	if n == 0 {
		_, err = s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO `+s.table("releases")+` (version, installed_at, installer_name, installer_email)
			 VALUES (?, ?, ?, ?)`),
			Version, formatTime(time.Now()), installerName, installerEmail)
		if err != nil {
			return fmt.Errorf("record registry release: %w", err)
		}
	}
	return nil
}

// EnsureProject registers the project in the registry, refusing to share a
// registry with a different project of the same name (detected by URI
// mismatch).
func (s *Store) EnsureProject(ctx context.Context, project, uri, creatorName, creatorEmail string) error {
	conflict, err := s.HasConflictingProject(ctx, project, uri)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("registry already tracks project %q with a different URI", project)
	}
	var n int
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM `+s.table("projects")+` WHERE project = ?`), project).Scan(&n)
	if err != nil {
		return fmt.Errorf("query project: %w", err)
	}
	if n > 0 {
		return nil
	}
	var uriVal any
	if uri != "" {
		uriVal = uri
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO `+s.table("projects")+` (project, uri, created_at, creator_name, creator_email)
		 VALUES (?, ?, ?, ?, ?)`),
		project, uriVal, formatTime(time.Now()), creatorName, creatorEmail)
	if err != nil {
		return fmt.Errorf("register project: %w", err)
	}
	return nil
}

// HasConflictingProject reports whether the registry already tracks a
// project with this name but a different URI.
func (s *Store) HasConflictingProject(ctx context.Context, project, uri string) (bool, error) {
	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT uri FROM `+s.table("projects")+` WHERE project = ?`), project).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query project: %w", err)
	}
	return stored.String != uri, nil
}

func (s *Store) table(name string) string { return s.prefix + name }

// rebind rewrites ? placeholders to the flavor's positional style.
func (s *Store) rebind(query string) string {
	if s.flavor != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timeLayout is the registry timestamp format, millisecond precision, UTC.
const timeLayout = "2006-01-02 15:04:05.000"

// now returns the current time, nudged forward past the previous value when
// the clock has not advanced a full millisecond. Deploy order is read back by
// ordering on committed_at, so successive rows must never share a value.
func (s *Store) now() time.Time {
	t := time.Now()
	if !t.After(s.lastNow.Add(time.Millisecond)) {
		t = s.lastNow.Add(time.Millisecond)
	}
	s.lastNow = t
	return t
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ParseTime parses a registry timestamp column value.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed registry timestamp %q: %w", s, err)
	}
	return t, nil
}

// splitStatements breaks the schema file on ";" at line ends. Good enough
// for DDL we author ourselves; not a SQL parser.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";\n") {
		if s := strings.TrimSpace(stmt); s != "" && !isOnlyComments(s) {
			out = append(out, s)
		}
	}
	return out
}

func isOnlyComments(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
