package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevertAll(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	require.NoError(t, e.orch.Revert(ctx, ""))
	assert.Equal(t, StateClean, e.orch.State())

	assert.Empty(t, e.deployedNames())
	for _, table := range []string{"users", "flips", "hashtags"} {
		assert.False(t, e.tableExists(table), "table %s must be gone after a full revert", table)
	}
	assert.Equal(t, []string{
		"deploy:users", "deploy:flips", "deploy:hashtags",
		"revert:hashtags", "revert:flips", "revert:users",
	}, e.events(), "revert walks in reverse plan order")
}

func TestRevertRunsInReverseOrder(t *testing.T) {
	scripts := fliprScripts()
	scripts["revert/users"] = "INSERT INTO audit (name) VALUES ('users');\nDROP TABLE users;"
	scripts["revert/flips"] = "INSERT INTO audit (name) VALUES ('flips');\nDROP TABLE flips;"
	scripts["revert/hashtags"] = "INSERT INTO audit (name) VALUES ('hashtags');\nDROP TABLE hashtags;"
	e := newEnv(t, fliprPlan, scripts)
	ctx := context.Background()

	require.NoError(t, e.orch.Deploy(ctx, ""))
	e.exec(`CREATE TABLE audit (name TEXT)`)
	require.NoError(t, e.orch.Revert(ctx, ""))

	rows, err := e.orch.registry().DB().Query(`SELECT name FROM audit ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()
	var order []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		order = append(order, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"hashtags", "flips", "users"}, order)
}

func TestRevertToRef(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	require.NoError(t, e.orch.Revert(ctx, "@v1.0"))
	assert.Equal(t, StateDeployed, e.orch.State(), "a partial revert leaves the target deployed")

	assert.Equal(t, []string{"users", "flips"}, e.deployedNames(), "the ref itself stays deployed")
	assert.True(t, e.tableExists("flips"))
	assert.False(t, e.tableExists("hashtags"))
}

func TestRevertNothingToDo(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()

	require.NoError(t, e.orch.Revert(ctx, ""), "reverting a clean target is a no-op")
	assert.Equal(t, StateClean, e.orch.State())

	require.NoError(t, e.orch.Deploy(ctx, ""))
	require.NoError(t, e.orch.Revert(ctx, "@HEAD"), "reverting to the current position is a no-op")
	assert.Equal(t, StateDeployed, e.orch.State())
	assert.Equal(t, []string{"users", "flips", "hashtags"}, e.deployedNames())
}

func TestRevertScriptFailure(t *testing.T) {
	scripts := fliprScripts()
	scripts["revert/hashtags"] = "DROP TABLE no_such_table;"
	e := newEnv(t, fliprPlan, scripts)
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	err := e.orch.Revert(ctx, "")
	require.Error(t, err)
	assert.True(t, IsScriptError(err), "got %v", err)
	assert.Equal(t, StateFailed, e.orch.State())

	assert.Equal(t, []string{"users", "flips", "hashtags"}, e.deployedNames(),
		"the failed revert leaves its registry row in place")
	assert.True(t, e.tableExists("hashtags"))
}

func TestRevertMissingScriptFailsBeforeAnyChange(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	e.removeScript("revert/users")
	err := e.orch.Revert(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users")
	assert.Equal(t, []string{"users", "flips", "hashtags"}, e.deployedNames(),
		"all scripts are read before anything reverts")
	assert.True(t, e.tableExists("hashtags"))
}

func TestRevertRefusedWhileDependentsRemain(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	// Simulate a dependency recorded outside the revert set: users (staying)
	// requires hashtags (being reverted).
	p := e.orch.Project.Plan
	e.exec(`INSERT INTO registry.dependencies (change_id, type, dependency, dependency_id)
		VALUES (?, 'require', 'hashtags', ?)`, p.Change(0).ID, p.Change(2).ID)

	err := e.orch.Revert(ctx, "@v1.0")
	require.Error(t, err)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "hashtags", ie.Change)

	assert.Equal(t, []string{"users", "flips", "hashtags"}, e.deployedNames(),
		"the integrity check runs before any mutation")
	assert.True(t, e.tableExists("hashtags"))
}

func TestRevertScriptManagedTransaction(t *testing.T) {
	scripts := fliprScripts()
	scripts["revert/hashtags"] = "-- strata: no-transaction\nBEGIN;\nDROP TABLE hashtags;\nCOMMIT;"
	e := newEnv(t, fliprPlan, scripts)
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	require.NoError(t, e.orch.Revert(ctx, "@v1.0"))
	assert.Equal(t, []string{"users", "flips"}, e.deployedNames())
	assert.False(t, e.tableExists("hashtags"))
}
