package deploy

import (
	"context"

	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/registry"
)

// Status compares registry state against the plan.
type Status struct {
	Project string

	// Deployed is the registry's currently-deployed changes, deploy order.
	Deployed []registry.Record

	// Position is the plan position of the last deployed change, -1 when
	// nothing is deployed.
	Position int

	// Pending lists plan changes after Position, in plan order.
	Pending []*plan.Change

	// Tags lists tag names applied as of the last deployed change.
	Tags []string
}

// UpToDate reports whether the target is at the plan's head.
func (s *Status) UpToDate() bool { return len(s.Pending) == 0 }

// Status reads the registry and reports where the target sits relative to
// the plan. Read-only.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	p := o.Project.Plan
	if err := o.prepare(ctx); err != nil {
		return nil, err
	}
	records, err := o.registry().CurrentState(ctx, p.Project)
	if err != nil {
		return nil, err
	}
	st := &Status{Project: p.Project, Deployed: records, Position: -1}
	for _, rec := range records {
		pos := p.PositionOf(rec.ChangeID)
		if pos < 0 {
			return nil, &StateError{Message: "deployed change " + rec.ChangeID + " is not in the plan"}
		}
		if pos > st.Position {
			st.Position = pos
		}
		st.Tags = append(st.Tags, rec.Tags...)
	}
	for pos := st.Position + 1; pos < len(p.Changes()); pos++ {
		st.Pending = append(st.Pending, p.Change(pos))
	}
	return st, nil
}
