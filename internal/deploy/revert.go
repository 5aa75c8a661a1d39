package deploy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/roach88/strata/internal/project"
	"github.com/roach88/strata/internal/ref"
	"github.com/roach88/strata/internal/registry"
	"github.com/roach88/strata/internal/sqlengine"
)

// Revert walks deployed changes in reverse plan order down to — but not
// including — toRef, running each change's revert script and deleting its
// registry rows in the same unit of work. An empty toRef reverts
// everything. Refused before any mutation if a change outside the revert
// set still requires one inside it.
func (o *Orchestrator) Revert(ctx context.Context, toRef string) error {
	o.state = StateReverting
	all, err := o.revert(ctx, toRef)
	if err != nil {
		o.state = StateFailed
		return err
	}
	if all {
		o.state = StateClean
	} else {
		o.state = StateDeployed
	}
	return nil
}

func (o *Orchestrator) revert(ctx context.Context, toRef string) (revertedAll bool, err error) {
	p := o.Project.Plan
	if err := o.prepare(ctx); err != nil {
		return false, err
	}

	limit := -1 // exclusive: the position that stays deployed
	if toRef != "" {
		if limit, err = ref.Resolve(p, toRef); err != nil {
			return false, err
		}
	}

	records, err := o.registry().CurrentState(ctx, p.Project)
	if err != nil {
		return false, err
	}

	type item struct {
		pos int
		rec registry.Record
	}
	var batch []item
	for _, rec := range records {
		pos := p.PositionOf(rec.ChangeID)
		if pos < 0 {
			return false, &StateError{Message: fmt.Sprintf("deployed change %s (%s) is not in the plan", rec.Change, rec.ChangeID)}
		}
		if pos > limit {
			batch = append(batch, item{pos: pos, rec: rec})
		}
	}
	if len(batch) == 0 {
		o.log().Info("nothing to revert", "to", toRef)
		return limit < 0, nil
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].pos > batch[j].pos })

	// Integrity check before any mutation: nothing outside the revert set
	// may still require a change inside it.
	inBatch := make(map[string]bool, len(batch))
	for _, it := range batch {
		inBatch[it.rec.ChangeID] = true
	}
	for _, it := range batch {
		dependents, err := o.registry().Dependents(ctx, it.rec.ChangeID)
		if err != nil {
			return false, err
		}
		for _, d := range dependents {
			if !inBatch[d.ChangeID] {
				return false, &IntegrityError{
					Change:  it.rec.Change,
					Message: fmt.Sprintf("deployed change %s still requires it", d.Change),
				}
			}
		}
	}

	// Fail fast on unreadable revert scripts.
	scripts := make([]string, len(batch))
	for i, it := range batch {
		if scripts[i], err = o.Project.ReadScript(project.ScriptRevert, it.pos); err != nil {
			return false, err
		}
	}

	for i, it := range batch {
		if err := o.revertChange(ctx, it.pos, it.rec, scripts[i]); err != nil {
			return false, err
		}
	}
	return limit < 0, nil
}

// revertChange mirrors deployChange: script first, registry delete in the
// same transaction when the tool owns it, afterwards in a short one when
// the script manages its own.
func (o *Orchestrator) revertChange(ctx context.Context, pos int, deployedRec registry.Record, script string) error {
	c := o.Project.Plan.Change(pos)
	log := o.log().With("change", c.Name, "id", c.ID)
	rec := registry.RevertRecord{
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
		Tags:           deployedRec.Tags,
	}

	if o.Adapter.ScriptMode(script) == sqlengine.TxnScript {
		log.Debug("running revert script (script-managed transaction)")
		if err := o.Adapter.Run(ctx, script); err != nil {
			o.noteFailure(ctx, c)
			return &ScriptError{Change: c.Name, Op: "revert", Err: err}
		}
		if err := o.commitRecord(ctx, func(tx *sql.Tx) error {
			return o.registry().RecordRevert(ctx, tx, rec)
		}); err != nil {
			return err
		}
		log.Info("reverted")
		return nil
	}

	tx, err := o.registry().Begin(ctx)
	if err != nil {
		return err
	}
	log.Debug("running revert script")
	if err := o.Adapter.RunTx(ctx, tx, script); err != nil {
		tx.Rollback()
		o.noteFailure(ctx, c)
		return &ScriptError{Change: c.Name, Op: "revert", Err: err}
	}
	if err := o.registry().RecordRevert(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revert of %s: %w", c.Name, err)
	}
	log.Info("reverted")
	return nil
}
