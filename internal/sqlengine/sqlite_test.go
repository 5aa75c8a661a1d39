package sqlengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptModeScan(t *testing.T) {
	cases := []struct {
		name   string
		script string
		want   TxnMode
	}{
		{"plain", "CREATE TABLE t (x);", TxnTool},
		{"marker first", "-- strata: no-transaction\nBEGIN;", TxnScript},
		{"marker after comments", "-- Deploy flipr:users\n\n-- strata: no-transaction\nBEGIN;", TxnScript},
		{"marker after statement", "CREATE TABLE t (x);\n-- strata: no-transaction", TxnTool},
		{"marker indented", "   -- strata: no-transaction\nBEGIN;", TxnScript},
		{"empty", "", TxnTool},
		{"comments only", "-- nothing here\n", TxnTool},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, scriptMode(tc.script), tc.name)
	}
}

func openTestAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	dir := t.TempDir()
	a, err := OpenSQLite(filepath.Join(dir, "target.db"), filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteSharedTransaction(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Registry().Initialize(ctx, "T", "t@x"))

	// One transaction spans a target mutation and a registry row.
	tx, err := a.Registry().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, a.RunTx(ctx, tx, "CREATE TABLE users (nickname TEXT);"))
	_, err = tx.Exec(`INSERT INTO registry.projects (project, uri, created_at, creator_name, creator_email)
		VALUES ('flipr', NULL, '2012-01-01 00:00:00.000', 'P', 'p@x')`)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var n int
	require.NoError(t, a.Registry().DB().QueryRow(
		`SELECT COUNT(*) FROM main.sqlite_master WHERE name = 'users'`).Scan(&n))
	assert.Zero(t, n, "rollback undoes the target mutation")
	require.NoError(t, a.Registry().DB().QueryRow(
		`SELECT COUNT(*) FROM registry.projects`).Scan(&n))
	assert.Zero(t, n, "rollback undoes the registry row in the same transaction")
}

func TestSQLiteRegistryPrefix(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Registry().Initialize(ctx, "T", "t@x"))
	require.NoError(t, a.Registry().EnsureProject(ctx, "flipr", "", "P", "p@x"))

	// Registry tables live in the attached database, not the target.
	var n int
	require.NoError(t, a.Registry().DB().QueryRow(
		`SELECT COUNT(*) FROM main.sqlite_master WHERE name = 'projects'`).Scan(&n))
	assert.Zero(t, n, "no registry tables leak into the target database")

	state, err := a.Registry().CurrentState(ctx, "flipr")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestSQLiteRunMultiStatement(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, "CREATE TABLE a (x);\nCREATE TABLE b (y);\nINSERT INTO a VALUES (1);"))

	var n int
	require.NoError(t, a.Registry().DB().QueryRow(`SELECT COUNT(*) FROM a`).Scan(&n))
	assert.Equal(t, 1, n)
}
