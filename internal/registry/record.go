package registry

import "time"

// Record is one currently-deployed change as read back from the registry.
type Record struct {
	ChangeID       string
	ScriptHash     string
	Change         string
	Project        string
	Note           string
	CommittedAt    time.Time
	CommitterName  string
	CommitterEmail string
	PlannedAt      time.Time
	PlannerName    string
	PlannerEmail   string

	// Tags applied with this change at deploy time, with leading "@".
	Tags []string
}

// Dependency is one row of the dependencies table. ID is the resolved
// change_id of the dependency for requires; empty for conflicts, which
// reference changes that must NOT be deployed.
type Dependency struct {
	Type string // "require" or "conflict"
	Name string // reference as written in the plan, pins included
	ID   string
}

// TagRecord is a tag applied together with a deployed change.
type TagRecord struct {
	TagID        string
	Tag          string // without "@"
	Note         string
	PlannedAt    time.Time
	PlannerName  string
	PlannerEmail string
}

// DeployRecord carries everything RecordDeploy persists for one change.
type DeployRecord struct {
	ChangeID       string
	ScriptHash     string
	Change         string
	Project        string
	Note           string
	CommitterName  string
	CommitterEmail string
	PlannedAt      time.Time
	PlannerName    string
	PlannerEmail   string
	Dependencies   []Dependency
	Tags           []TagRecord
}

// RevertRecord carries what RecordRevert needs beyond the change row it
// deletes: the event-log fields describing what was reverted.
type RevertRecord struct {
	ChangeID       string
	Change         string
	Project        string
	Note           string
	CommitterName  string
	CommitterEmail string
	PlannedAt      time.Time
	PlannerName    string
	PlannerEmail   string
	Requires       []string
	Conflicts      []string
	Tags           []string // with leading "@"
}

// FailRecord is logged when a change script fails. Mirrors the deploy event
// fields; no changes-table row exists for a failed change.
type FailRecord struct {
	ChangeID       string
	Change         string
	Project        string
	Note           string
	CommitterName  string
	CommitterEmail string
	PlannedAt      time.Time
	PlannerName    string
	PlannerEmail   string
	Requires       []string
	Conflicts      []string
	Tags           []string
}
