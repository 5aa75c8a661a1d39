package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAllPass(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	report, err := e.orch.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Skipped)
	assert.False(t, report.Failed())
}

func TestVerifyCollectsFailures(t *testing.T) {
	scripts := fliprScripts()
	scripts["verify/users"] = "SELECT no_such_column FROM users;"
	scripts["verify/flips"] = "SELECT whatever FROM no_such_table;"
	e := newEnv(t, fliprPlan, scripts)
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	report, err := e.orch.Verify(ctx)
	require.NoError(t, err, "verify failures are reported, not returned")
	require.Len(t, report.Failures, 2, "all failures are collected before reporting")
	assert.Equal(t, "users", report.Failures[0].Change)
	assert.Equal(t, "flips", report.Failures[1].Change)
	assert.True(t, report.Failed())

	assert.Len(t, e.events(), 3, "verify never writes the registry")
	assert.Equal(t, []string{"users", "flips", "hashtags"}, e.deployedNames())
}

func TestVerifySkipsMissingScripts(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, ""))

	e.removeScript("verify/hashtags")
	report, err := e.orch.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []string{"hashtags"}, report.Skipped, "a missing verify script is a skip, not a failure")
	assert.False(t, report.Failed())
}

func TestVerifyOnlyDeployedChanges(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()
	require.NoError(t, e.orch.Deploy(ctx, "@v1.0"))

	report, err := e.orch.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked, "undeployed changes are not verified")
	assert.False(t, report.Failed())
}

func TestStatus(t *testing.T) {
	e := newEnv(t, fliprPlan, fliprScripts())
	ctx := context.Background()

	st, err := e.orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "flipr", st.Project)
	assert.Equal(t, -1, st.Position)
	assert.Len(t, st.Pending, 3)
	assert.False(t, st.UpToDate())

	require.NoError(t, e.orch.Deploy(ctx, "@v1.0"))
	st, err = e.orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Position)
	require.Len(t, st.Pending, 1)
	assert.Equal(t, "hashtags", st.Pending[0].Name)
	assert.Equal(t, []string{"@v1.0"}, st.Tags)
	assert.False(t, st.UpToDate())

	require.NoError(t, e.orch.Deploy(ctx, ""))
	st, err = e.orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position)
	assert.True(t, st.UpToDate())
	require.Len(t, st.Deployed, 3)
}
