package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/roach88/strata/internal/registry"
)

// registryDatabase is the sibling MySQL database holding the registry
// tables on the same server as the target.
const registryDatabase = "strata"

// MySQLAdapter runs scripts against a MySQL database. The registry lives in
// a sibling database on the same server. MySQL DDL auto-commits, so the
// "one unit of work" guarantee is weaker here than on SQLite or Postgres;
// the registry row is still only written after the script succeeds.
type MySQLAdapter struct {
	db  *sql.DB
	reg *registry.Store
}

// OpenMySQL connects to the target and ensures the registry database
// exists. multiStatements is forced on: change scripts routinely contain
// more than one statement.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLAdapter, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = false
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql target: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect mysql target: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+registryDatabase); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry database: %w", err)
	}
	return &MySQLAdapter{
		db:  db,
		reg: registry.New(registry.Config{DB: db, Flavor: registry.MySQL, Prefix: registryDatabase + "."}),
	}, nil
}

func (a *MySQLAdapter) Engine() string { return "mysql" }

func (a *MySQLAdapter) ScriptMode(script string) TxnMode { return scriptMode(script) }

func (a *MySQLAdapter) RunTx(ctx context.Context, tx *sql.Tx, script string) error {
	_, err := tx.ExecContext(ctx, script)
	return err
}

func (a *MySQLAdapter) Run(ctx context.Context, script string) error {
	_, err := a.db.ExecContext(ctx, script)
	return err
}

func (a *MySQLAdapter) Registry() *registry.Store { return a.reg }

func (a *MySQLAdapter) Close() error { return a.db.Close() }
