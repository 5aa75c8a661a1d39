// Package sqlengine executes change scripts against a specific SQL backend
// and resolves the sibling registry store for a target. The deploy
// orchestrator drives these adapters one blocking call at a time; nothing
// here is concurrent.
package sqlengine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/roach88/strata/internal/registry"
)

// TxnMode reports who owns transaction boundaries for a script. It is an
// explicit tagged value from the adapter, never inferred from script
// content beyond the declared marker, so the orchestrator's wrapping
// decision stays a simple branch.
type TxnMode int

const (
	// TxnTool means the orchestrator wraps the script in a transaction
	// shared with the registry write.
	TxnTool TxnMode = iota

	// TxnScript means the script manages its own transaction; the
	// orchestrator waits for it and writes the registry row afterwards in
	// a short transaction of its own.
	TxnScript
)

// NoTransactionMarker declares, in a script's leading comment lines, that
// the script manages its own transaction boundaries.
const NoTransactionMarker = "-- strata: no-transaction"

// Adapter executes scripts against one target connection. Each call can
// fail with an engine-specific error which is surfaced verbatim.
type Adapter interface {
	// Engine names the backend ("sqlite", "pg", "mysql").
	Engine() string

	// ScriptMode reports who owns transaction boundaries for the script.
	ScriptMode(script string) TxnMode

	// RunTx executes the script inside the orchestrator's transaction.
	RunTx(ctx context.Context, tx *sql.Tx, script string) error

	// Run executes a script that manages its own transaction.
	Run(ctx context.Context, script string) error

	// Registry returns the sibling registry store for this target. In the
	// common case it shares the target's physical database so one
	// transaction spans both.
	Registry() *registry.Store

	Close() error
}

// scriptMode is the shared marker scan: the marker must appear in the
// leading comment block, before the first non-comment line.
func scriptMode(script string) TxnMode {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return TxnTool
		}
		if strings.HasPrefix(line, NoTransactionMarker) {
			return TxnScript
		}
	}
	return TxnTool
}
