package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/project"
)

const reworkPlan = `%project=flipr

users 2012-07-16T17:25:07Z Penny Gibbs <penny@example.com> # Users table.
@v1.0 2012-07-16T18:30:13Z Penny Gibbs <penny@example.com> # First release.
`

func TestReworkDeployAndRevert(t *testing.T) {
	e := newEnv(t, reworkPlan, map[string]string{
		"deploy/users": "CREATE TABLE users (nickname TEXT PRIMARY KEY);",
		"revert/users": "DROP TABLE users;",
		"verify/users": "SELECT nickname FROM users LIMIT 1;",
	})
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	who := project.Identity{Name: "Penny Gibbs", Email: "penny@example.com"}
	c, err := e.orch.Project.Rework("users", nil, who, "Adds a bio column.")
	require.NoError(t, err)
	assert.Equal(t, "users@v1.0", c.ReworkOf)

	for _, kind := range []string{"deploy", "revert", "verify"} {
		assert.FileExists(t, filepath.Join(e.root, kind, "users@v1.0.sql"),
			"the superseded occurrence keeps its %s script under the pinned stem", kind)
	}

	// The unqualified scripts now belong to the new version.
	e.writeScript("deploy/users", "ALTER TABLE users ADD COLUMN bio TEXT;")
	e.writeScript("revert/users", "ALTER TABLE users DROP COLUMN bio;")
	e.writeScript("verify/users", "SELECT nickname, bio FROM users LIMIT 1;")

	require.NoError(t, e.orch.Deploy(ctx, ""))
	assert.Equal(t, []string{"users", "users"}, e.deployedNames(),
		"both occurrences are deployed, as distinct changes")
	e.exec(`INSERT INTO users (nickname, bio) VALUES ('penny', 'flipping out')`)

	report, err := e.orch.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked, "each occurrence verifies with its own script")
	assert.False(t, report.Failed())

	require.NoError(t, e.orch.Revert(ctx, "@HEAD^"))
	assert.Equal(t, []string{"users"}, e.deployedNames(), "reverting the rework restores the prior version")

	var n int
	require.NoError(t, e.orch.registry().DB().QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'bio'`).Scan(&n))
	assert.Zero(t, n, "the rework's schema change is undone")
}

func TestReworkRequiresPinningTag(t *testing.T) {
	e := newEnv(t, "%project=flipr\n\nusers 2012-07-16T17:25:07Z Penny Gibbs <penny@example.com>\n",
		map[string]string{"deploy/users": "CREATE TABLE users (nickname TEXT);"})

	who := project.Identity{Name: "P", Email: "p@x"}
	_, err := e.orch.Project.Rework("users", nil, who, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tag")
}
