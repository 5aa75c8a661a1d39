package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/project"
	"github.com/roach88/strata/internal/sqlengine"
)

// Change positions in brackets:
//
//	[0] users
//	[1] flips      @v1.0
//	[2] hashtags
const fliprPlan = `%project=flipr

users 2012-07-16T17:25:07Z Penny Gibbs <penny@example.com> # Creates users.
flips [users] 2012-07-16T18:28:30Z Penny Gibbs <penny@example.com> # Creates flips.
@v1.0 2012-07-16T18:30:13Z Penny Gibbs <penny@example.com> # First release.
hashtags [flips] 2012-07-17T09:00:00Z Penny Gibbs <penny@example.com> # Hashtags.
`

func fliprScripts() map[string]string {
	return map[string]string{
		"deploy/users":    "CREATE TABLE users (nickname TEXT PRIMARY KEY);",
		"deploy/flips":    "CREATE TABLE flips (id INTEGER PRIMARY KEY, nickname TEXT REFERENCES users(nickname));",
		"deploy/hashtags": "CREATE TABLE hashtags (flip_id INTEGER, hashtag TEXT);",
		"revert/users":    "DROP TABLE users;",
		"revert/flips":    "DROP TABLE flips;",
		"revert/hashtags": "DROP TABLE hashtags;",
		"verify/users":    "SELECT nickname FROM users LIMIT 1;",
		"verify/flips":    "SELECT id, nickname FROM flips LIMIT 1;",
		"verify/hashtags": "SELECT flip_id, hashtag FROM hashtags LIMIT 1;",
	}
}

// env is a scratch project deployed against a real SQLite target with the
// registry attached, the way the sqlite adapter wires production targets.
type env struct {
	t    *testing.T
	root string
	orch *Orchestrator
}

func newEnv(t *testing.T, planText string, scripts map[string]string) *env {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "strata.plan"), []byte(planText), 0o644))
	for rel, body := range scripts {
		path := filepath.Join(root, rel+".sql")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	pr, err := project.Load(root, "")
	require.NoError(t, err)

	adapter, err := sqlengine.OpenSQLite(filepath.Join(root, "flipr.db"), filepath.Join(root, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	orch := New(pr, adapter, project.Identity{Name: "Op Erator", Email: "op@example.com"})
	return &env{t: t, root: root, orch: orch}
}

func (e *env) writeScript(rel, body string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.root, rel+".sql"), []byte(body), 0o644))
}

func (e *env) removeScript(rel string) {
	e.t.Helper()
	require.NoError(e.t, os.Remove(filepath.Join(e.root, rel+".sql")))
}

// deployedNames reads the registry's deploy-ordered change names.
func (e *env) deployedNames() []string {
	e.t.Helper()
	recs, err := e.orch.registry().CurrentState(context.Background(), e.orch.Project.Plan.Project)
	require.NoError(e.t, err)
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Change
	}
	return names
}

// tableExists checks the target database, not the attached registry.
func (e *env) tableExists(name string) bool {
	e.t.Helper()
	var n int
	err := e.orch.registry().DB().QueryRow(
		`SELECT COUNT(*) FROM main.sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(e.t, err)
	return n > 0
}

// events reads the registry event log in commit order.
func (e *env) events() []string {
	e.t.Helper()
	rows, err := e.orch.registry().DB().Query(
		`SELECT event || ':' || change FROM registry.events ORDER BY committed_at ASC`)
	require.NoError(e.t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ev string
		require.NoError(e.t, rows.Scan(&ev))
		out = append(out, ev)
	}
	require.NoError(e.t, rows.Err())
	return out
}

// exec runs SQL directly against the shared connection, outside the
// orchestrator. Used to simulate external interference.
func (e *env) exec(query string, args ...any) {
	e.t.Helper()
	_, err := e.orch.registry().DB().Exec(query, args...)
	require.NoError(e.t, err)
}
