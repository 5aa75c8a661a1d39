package deploy

import (
	"errors"
	"fmt"
	"strings"
)

// DependencyError means a change's non-rework dependency is neither
// deployed nor included in the current batch. Hard failure, detected before
// any transaction opens; lists every missing dependency.
type DependencyError struct {
	// Missing holds "{change} requires {dependency}" style entries.
	Missing []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("unresolved dependencies:\n  %s", strings.Join(e.Missing, "\n  "))
}

// ScriptError is an engine-reported failure running a change script. Fatal
// for the batch; the in-flight change's transaction rolled back, preceding
// changes remain committed. The engine error is surfaced verbatim.
type ScriptError struct {
	Change string
	Op     string // "deploy", "revert", or "verify"
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Change, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// IntegrityError means a registry mutation was refused before any change
// was made, e.g. reverting a change that other deployed changes still
// require.
type IntegrityError struct {
	Change  string
	Message string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("registry integrity: cannot touch %s: %s", e.Change, e.Message)
}

// StateError means registry contents disagree with the plan: a deployed
// change the plan does not know, or deploy order that does not match plan
// order. Points at external interference.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return "registry state: " + e.Message }

// IsDependencyError reports whether err is (or wraps) a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

// IsScriptError reports whether err is (or wraps) a ScriptError.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}
