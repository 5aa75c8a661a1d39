package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "-C", dir))
	err := cmd.Execute()
	return buf.String(), err
}

func newCLIProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.plan"), []byte("%project=flipr\n"), 0o644))
	t.Setenv("STRATA_USER_NAME", "Penny Gibbs")
	t.Setenv("STRATA_USER_EMAIL", "penny@example.com")
	return dir
}

func TestAddTagDeployStatusFlow(t *testing.T) {
	dir := newCLIProject(t)
	target := "db:sqlite:" + filepath.Join(dir, "flipr.db")

	out, err := runCLI(t, dir, "add", "users", "-n", "Creates users.")
	require.NoError(t, err)
	assert.Contains(t, out, "added users")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy", "users.sql"),
		[]byte("CREATE TABLE users (nickname TEXT PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "revert", "users.sql"),
		[]byte("DROP TABLE users;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "verify", "users.sql"),
		[]byte("SELECT nickname FROM users LIMIT 1;"), 0o644))

	out, err = runCLI(t, dir, "tag", "v1.0", "-n", "Release.")
	require.NoError(t, err)
	assert.Contains(t, out, "v1.0")

	out, err = runCLI(t, dir, "deploy", target)
	require.NoError(t, err)
	assert.Contains(t, out, "deployed flipr")

	out, err = runCLI(t, dir, "status", target)
	require.NoError(t, err)
	assert.Contains(t, out, "up-to-date")

	out, err = runCLI(t, dir, "verify", target)
	require.NoError(t, err)
	assert.Contains(t, out, "verified")

	out, err = runCLI(t, dir, "revert", target)
	require.NoError(t, err)
	assert.Contains(t, out, "reverted")

	out, err = runCLI(t, dir, "status", target)
	require.NoError(t, err)
	assert.Contains(t, out, "undeployed change(s):")
}

func TestStatusJSON(t *testing.T) {
	dir := newCLIProject(t)
	target := "db:sqlite:" + filepath.Join(dir, "flipr.db")

	_, err := runCLI(t, dir, "add", "users")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "status", target, "--format", "json")
	require.NoError(t, err)

	var payload struct {
		Project  string `json:"project"`
		Deployed int    `json:"deployed"`
		UpToDate bool   `json:"up_to_date"`
		Pending  []struct {
			Change string `json:"change"`
		} `json:"pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "flipr", payload.Project)
	assert.Zero(t, payload.Deployed)
	assert.False(t, payload.UpToDate)
	require.Len(t, payload.Pending, 1)
	assert.Equal(t, "users", payload.Pending[0].Change)
}

func TestInvalidFormatRejected(t *testing.T) {
	dir := newCLIProject(t)
	_, err := runCLI(t, dir, "status", "db:sqlite:x.db", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	dir := newCLIProject(t)
	target := "db:sqlite:" + filepath.Join(dir, "flipr.db")
	_, err := runCLI(t, dir, "add", "users")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy", "users.sql"),
		[]byte("CREATE TABLE users (nickname TEXT);"), 0o644))

	// Unresolvable reference is an operation failure.
	_, err = runCLI(t, dir, "deploy", target, "--to", "@nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// A malformed target URI is a command error.
	_, err = runCLI(t, dir, "deploy", "not-a-target")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	// Plan mutations refuse to run without an operator identity.
	t.Setenv("STRATA_USER_NAME", "")
	_, err = runCLI(t, dir, "tag", "v1.0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "operator identity")
}

func TestAddDuplicateSuggestsRework(t *testing.T) {
	dir := newCLIProject(t)
	_, err := runCLI(t, dir, "add", "users")
	require.NoError(t, err)

	_, err = runCLI(t, dir, "add", "users")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "rework")
}

func TestReworkFlow(t *testing.T) {
	dir := newCLIProject(t)
	_, err := runCLI(t, dir, "add", "users")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "tag", "v1.0")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "rework", "users", "-n", "Second take.")
	require.NoError(t, err)
	assert.Contains(t, out, "reworked users")
	assert.Contains(t, out, "users@v1.0")
	assert.FileExists(t, filepath.Join(dir, "deploy", "users@v1.0.sql"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))

	wrapped := WrapExitError(ExitFailure, "outer", WrapExitError(ExitCommandError, "inner", nil))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped), "the outermost code wins")
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Emit(map[string]int{"n": 1}, nil))
	assert.JSONEq(t, `{"n": 1}`, buf.String())

	buf.Reset()
	f.Format = "text"
	require.NoError(t, f.Emit(nil, func(w io.Writer) { fmt.Fprint(w, "hello") }))
	assert.Equal(t, "hello", buf.String())
}

func TestPlanCommandListsEntries(t *testing.T) {
	dir := newCLIProject(t)
	_, err := runCLI(t, dir, "add", "users", "-n", "Creates users.")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "tag", "v1.0")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "# project flipr")
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "@v1.0")

	out, err = runCLI(t, dir, "plan", "--format", "json")
	require.NoError(t, err)
	var payload struct {
		Project string `json:"project"`
		Entries []struct {
			Type string `json:"type"`
			Name string `json:"name"`
			ID   string `json:"id"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "flipr", payload.Project)
	require.Len(t, payload.Entries, 2)
	assert.Equal(t, "change", payload.Entries[0].Type)
	assert.Len(t, payload.Entries[0].ID, 40)
	assert.Equal(t, "tag", payload.Entries[1].Type)
	assert.Equal(t, "@v1.0", payload.Entries[1].Name)
}

func TestPlanValidate(t *testing.T) {
	dir := newCLIProject(t)
	_, err := runCLI(t, dir, "add", "users")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "plan", "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	// A dependency on a change that never appears must fail validation.
	plan := filepath.Join(dir, "strata.plan")
	data, err := os.ReadFile(plan)
	require.NoError(t, err)
	data = append(data, []byte("flips [widgets] 2013-01-01T00:00:00Z Penny Gibbs <penny@example.com>\n")...)
	require.NoError(t, os.WriteFile(plan, data, 0o644))

	_, err = runCLI(t, dir, "plan", "--validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flips->widgets")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
