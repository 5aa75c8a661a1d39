package deploy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/project"
	"github.com/roach88/strata/internal/ref"
	"github.com/roach88/strata/internal/registry"
	"github.com/roach88/strata/internal/sqlengine"
)

// Deploy applies every not-yet-deployed change up to and including toRef
// (default @HEAD), strictly in plan order. Each change runs in one unit of
// work with its registry row; a script failure aborts that change's
// transaction, leaves every previously committed change intact, and
// reports which change failed and why.
func (o *Orchestrator) Deploy(ctx context.Context, toRef string) error {
	o.state = StateDeploying
	if err := o.deploy(ctx, toRef); err != nil {
		o.state = StateFailed
		return err
	}
	o.state = StateDeployed
	return nil
}

func (o *Orchestrator) deploy(ctx context.Context, toRef string) error {
	p := o.Project.Plan
	if err := o.prepare(ctx); err != nil {
		return err
	}
	if toRef == "" {
		toRef = "@HEAD"
	}
	to, err := ref.Resolve(p, toRef)
	if err != nil {
		return err
	}

	deployed, high, err := o.deployedPositions(ctx)
	if err != nil {
		return err
	}
	if high >= to {
		o.log().Info("nothing to deploy", "to", toRef)
		return nil
	}

	batch := make([]int, 0, to-high)
	for pos := high + 1; pos <= to; pos++ {
		batch = append(batch, pos)
	}
	if err := o.validateDependencies(ctx, deployed, batch); err != nil {
		return err
	}

	// Fail fast: every script in the batch must be readable before any
	// transaction opens.
	scripts := make([]string, len(batch))
	for i, pos := range batch {
		if scripts[i], err = o.Project.ReadScript(project.ScriptDeploy, pos); err != nil {
			return err
		}
	}

	for i, pos := range batch {
		if err := o.deployChange(ctx, pos, scripts[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateDependencies checks every change in the batch: each required
// dependency (pin stripped for ordering purposes) must already be deployed
// or appear earlier in the batch, and no declared conflict may be deployed.
// Failures are collected and reported together.
func (o *Orchestrator) validateDependencies(ctx context.Context, deployed map[string]int, batch []int) error {
	p := o.Project.Plan
	inBatch := make(map[string]int, len(batch)) // change ID -> batch order
	for i, pos := range batch {
		inBatch[p.Change(pos).ID] = i
	}

	var missing []string
	for i, pos := range batch {
		c := p.Change(pos)
		for _, dep := range c.Requires {
			target, err := o.resolveDep(dep)
			if err != nil {
				missing = append(missing, fmt.Sprintf("%s requires %s (not in plan)", c.Name, dep))
				continue
			}
			if _, ok := deployed[target.ID]; ok {
				continue
			}
			if j, ok := inBatch[target.ID]; ok && j < i {
				continue
			}
			missing = append(missing, fmt.Sprintf("%s requires %s (not deployed)", c.Name, dep))
		}
		for _, conflict := range c.Conflicts {
			base := plan.DependencyBase(conflict)
			if target := p.LatestVersion(base); target != nil {
				if _, ok := deployed[target.ID]; ok {
					missing = append(missing, fmt.Sprintf("%s conflicts with deployed change %s", c.Name, base))
				}
			}
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Missing: missing}
	}
	return nil
}

// deployChange runs one change's deploy script and records it. When the
// script manages its own transaction (declared marker), the orchestrator
// must not wrap it: it waits for the script's own commit or rollback and
// only then writes the registry row in a short transaction of its own, so
// a script-level rollback never leaves a registry entry behind.
func (o *Orchestrator) deployChange(ctx context.Context, pos int, script string) error {
	c := o.Project.Plan.Change(pos)
	log := o.log().With("change", c.Name, "id", c.ID)
	rec, err := o.deployRecord(pos, script)
	if err != nil {
		return err
	}

	if o.Adapter.ScriptMode(script) == sqlengine.TxnScript {
		log.Debug("running deploy script (script-managed transaction)")
		if err := o.Adapter.Run(ctx, script); err != nil {
			o.noteFailure(ctx, c)
			return &ScriptError{Change: c.Name, Op: "deploy", Err: err}
		}
		if err := o.commitRecord(ctx, func(tx *sql.Tx) error {
			return o.registry().RecordDeploy(ctx, tx, rec)
		}); err != nil {
			return err
		}
		log.Info("deployed")
		return nil
	}

	tx, err := o.registry().Begin(ctx)
	if err != nil {
		return err
	}
	log.Debug("running deploy script")
	if err := o.Adapter.RunTx(ctx, tx, script); err != nil {
		tx.Rollback()
		o.noteFailure(ctx, c)
		return &ScriptError{Change: c.Name, Op: "deploy", Err: err}
	}
	if err := o.registry().RecordDeploy(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deploy of %s: %w", c.Name, err)
	}
	log.Info("deployed")
	return nil
}

// deployRecord assembles the registry row set for the change at pos:
// resolved dependency links and the plan tags attached to it.
func (o *Orchestrator) deployRecord(pos int, script string) (registry.DeployRecord, error) {
	p := o.Project.Plan
	c := p.Change(pos)
	rec := registry.DeployRecord{
		ChangeID:       c.ID,
		ScriptHash:     scriptHash(script),
		Change:         c.Name,
		Project:        p.Project,
		Note:           c.Note,
		CommitterName:  o.Operator.Name,
		CommitterEmail: o.Operator.Email,
		PlannedAt:      c.PlannedAt,
		PlannerName:    c.PlannerName,
		PlannerEmail:   c.PlannerEmail,
	}
	for _, dep := range c.Requires {
		target, err := o.resolveDep(dep)
		if err != nil {
			return rec, err // validated earlier; kept as a safety net
		}
		rec.Dependencies = append(rec.Dependencies, registry.Dependency{
			Type: "require", Name: dep, ID: target.ID,
		})
	}
	for _, dep := range c.Conflicts {
		rec.Dependencies = append(rec.Dependencies, registry.Dependency{
			Type: "conflict", Name: dep,
		})
	}
	for _, tag := range p.TagsFor(pos) {
		t := p.Tag(tag)
		rec.Tags = append(rec.Tags, registry.TagRecord{
			TagID:        t.ID,
			Tag:          t.Name,
			Note:         t.Note,
			PlannedAt:    t.TaggedAt,
			PlannerName:  t.PlannerName,
			PlannerEmail: t.PlannerEmail,
		})
	}
	return rec, nil
}

// commitRecord runs a registry write in its own short transaction.
func (o *Orchestrator) commitRecord(ctx context.Context, write func(tx *sql.Tx) error) error {
	tx, err := o.registry().Begin(ctx)
	if err != nil {
		return err
	}
	if err := write(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// noteFailure appends a fail event. Best effort: the script failure is the
// error the operator needs to see, so event-log trouble is only logged.
func (o *Orchestrator) noteFailure(ctx context.Context, c *plan.Change) {
	err := o.registry().RecordFail(ctx, registry.FailRecord{
		ChangeID:       c.ID,
		Change:         c.Name,
		Project:        o.Project.Plan.Project,
		Note:           c.Note,
		CommitterName:  o.Operator.Name,
		CommitterEmail: o.Operator.Email,
		PlannedAt:      c.PlannedAt,
		PlannerName:    c.PlannerName,
		PlannerEmail:   c.PlannerEmail,
		Requires:       c.Requires,
		Conflicts:      c.Conflicts,
	})
	if err != nil {
		o.log().Error("could not record failure event", "change", c.Name, "error", err)
	}
}
