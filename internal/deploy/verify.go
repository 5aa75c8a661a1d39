package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/strata/internal/project"
)

// VerifyReport summarizes a verify pass over the deployed changes.
type VerifyReport struct {
	// Checked counts changes whose verify script ran.
	Checked int

	// Skipped lists deployed changes with no verify script.
	Skipped []string

	// Failures maps change names to the engine error text.
	Failures []ScriptError
}

// Failed reports whether any verify script failed.
func (r *VerifyReport) Failed() bool { return len(r.Failures) > 0 }

// Verify runs the verify script of every deployed change in deploy order.
// Verification never mutates the registry; a missing verify script is a
// skip, a failing one is collected, and all failures are reported together.
func (o *Orchestrator) Verify(ctx context.Context) (*VerifyReport, error) {
	p := o.Project.Plan
	if err := o.prepare(ctx); err != nil {
		return nil, err
	}
	records, err := o.registry().CurrentState(ctx, p.Project)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	for _, rec := range records {
		pos := p.PositionOf(rec.ChangeID)
		if pos < 0 {
			return nil, &StateError{Message: fmt.Sprintf("deployed change %s (%s) is not in the plan", rec.Change, rec.ChangeID)}
		}
		script, err := o.Project.ReadScript(project.ScriptVerify, pos)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				report.Skipped = append(report.Skipped, rec.Change)
				continue
			}
			return nil, err
		}
		report.Checked++
		if err := o.Adapter.Run(ctx, script); err != nil {
			report.Failures = append(report.Failures, ScriptError{Change: rec.Change, Op: "verify", Err: err})
		}
	}

	if report.Failed() {
		names := make([]string, len(report.Failures))
		for i, f := range report.Failures {
			names[i] = f.Change
		}
		o.log().Error("verify failed", "changes", strings.Join(names, ", "))
	}
	return report, nil
}
