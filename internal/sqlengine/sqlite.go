package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/strata/internal/registry"
)

// SQLiteAdapter runs scripts against a SQLite database file. The registry
// lives in a sibling file attached to the same connection as "registry", so
// a single transaction covers a change script and its registry rows.
type SQLiteAdapter struct {
	db  *sql.DB
	reg *registry.Store
}

// OpenSQLite opens the target database and attaches the registry file.
// Single connection: the ATTACH is per-connection state, and SQLite only
// supports one writer anyway.
func OpenSQLite(path, registryPath string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite target %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite target %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(`ATTACH DATABASE ? AS registry`, registryPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach registry %s: %w", registryPath, err)
	}
	return &SQLiteAdapter{
		db:  db,
		reg: registry.New(registry.Config{DB: db, Flavor: registry.SQLite, Prefix: "registry."}),
	}, nil
}

func (a *SQLiteAdapter) Engine() string { return "sqlite" }

func (a *SQLiteAdapter) ScriptMode(script string) TxnMode { return scriptMode(script) }

func (a *SQLiteAdapter) RunTx(ctx context.Context, tx *sql.Tx, script string) error {
	_, err := tx.ExecContext(ctx, script)
	return err
}

func (a *SQLiteAdapter) Run(ctx context.Context, script string) error {
	_, err := a.db.ExecContext(ctx, script)
	return err
}

func (a *SQLiteAdapter) Registry() *registry.Store { return a.reg }

func (a *SQLiteAdapter) Close() error { return a.db.Close() }
