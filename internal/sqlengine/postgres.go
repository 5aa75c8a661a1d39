package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/roach88/strata/internal/registry"
)

// registrySchema is the Postgres schema holding the registry tables,
// alongside the target's own schemas in the same database.
const registrySchema = "strata"

// PostgresAdapter runs scripts against a Postgres database through the pgx
// stdlib driver. The registry is a schema in the same database, so one
// transaction covers a change script and its registry rows.
type PostgresAdapter struct {
	db  *sql.DB
	reg *registry.Store
}

// OpenPostgres connects to the target database and ensures the registry
// schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres target: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres target: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(registrySchema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return &PostgresAdapter{
		db:  db,
		reg: registry.New(registry.Config{DB: db, Flavor: registry.Postgres, Prefix: registrySchema + "."}),
	}, nil
}

func (a *PostgresAdapter) Engine() string { return "pg" }

func (a *PostgresAdapter) ScriptMode(script string) TxnMode { return scriptMode(script) }

func (a *PostgresAdapter) RunTx(ctx context.Context, tx *sql.Tx, script string) error {
	_, err := tx.ExecContext(ctx, script)
	return err
}

func (a *PostgresAdapter) Run(ctx context.Context, script string) error {
	_, err := a.db.ExecContext(ctx, script)
	return err
}

func (a *PostgresAdapter) Registry() *registry.Store { return a.reg }

func (a *PostgresAdapter) Close() error { return a.db.Close() }
