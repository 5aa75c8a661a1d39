// Package deploy is the state machine that moves a target between plan
// positions: it computes the ordered work list from the plan and the
// registry's current state, executes each change's script through an engine
// adapter, and commits registry updates atomically with the target mutation.
//
// Execution is strictly sequential, one change at a time in plan order, one
// blocking adapter round-trip per change. The only shared mutable resource
// is the (target, registry) connection pair for the duration of one
// change's transaction. Cancellation mid-change rolls back that one
// change's transaction and nothing else.
package deploy

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"

	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/project"
	"github.com/roach88/strata/internal/ref"
	"github.com/roach88/strata/internal/registry"
	"github.com/roach88/strata/internal/sqlengine"
)

// State of the target as the orchestrator sees it.
type State string

const (
	StateClean     State = "clean"
	StateDeploying State = "deploying"
	StateDeployed  State = "deployed"
	StateReverting State = "reverting"
	StateFailed    State = "failed"
)

// Orchestrator drives deploy, revert, and verify for one project against
// one target. Not safe for concurrent use; one operation at a time.
type Orchestrator struct {
	Project  *project.Project
	Adapter  sqlengine.Adapter
	Operator project.Identity

	state State
}

// New creates an orchestrator in the clean state.
func New(pr *project.Project, adapter sqlengine.Adapter, operator project.Identity) *Orchestrator {
	return &Orchestrator{Project: pr, Adapter: adapter, Operator: operator, state: StateClean}
}

// State reports the orchestrator's last observed target state.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) registry() *registry.Store { return o.Adapter.Registry() }

// prepare initializes the registry schema and registers the project.
// Called at the top of every operation; idempotent.
func (o *Orchestrator) prepare(ctx context.Context) error {
	p := o.Project.Plan
	reg := o.registry()
	if err := reg.Initialize(ctx, o.Operator.Name, o.Operator.Email); err != nil {
		return err
	}
	return reg.EnsureProject(ctx, p.Project, p.URI, o.Operator.Name, o.Operator.Email)
}

// deployedPositions maps the registry's deployed change IDs onto plan
// positions and verifies they form a strictly increasing sequence — deploy
// order must match plan order, anything else means another tool or operator
// interfered.
func (o *Orchestrator) deployedPositions(ctx context.Context) (map[string]int, int, error) {
	ids, err := o.registry().DeployedIDs(ctx, o.Project.Plan.Project)
	if err != nil {
		return nil, -1, err
	}
	positions := make(map[string]int, len(ids))
	high := -1
	for _, id := range ids {
		pos := o.Project.Plan.PositionOf(id)
		if pos < 0 {
			return nil, -1, &StateError{Message: "deployed change " + id + " is not in the plan"}
		}
		if pos <= high {
			return nil, -1, &StateError{Message: "deployed changes are out of plan order"}
		}
		positions[id] = pos
		high = pos
	}
	return positions, high, nil
}

// resolveDep resolves a dependency reference (pins included) to the change
// it names. Pin syntax resolves to a specific occurrence, so a rework
// depends on the exact superseded version.
func (o *Orchestrator) resolveDep(dep string) (*plan.Change, error) {
	return ref.ResolveChange(o.Project.Plan, dep)
}

// scriptHash is recorded with each deployed change so drift in deploy
// scripts after the fact is detectable.
func scriptHash(script string) string {
	sum := sha1.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}

func (o *Orchestrator) log() *slog.Logger {
	return slog.With("project", o.Project.Plan.Project, "engine", o.Adapter.Engine())
}
