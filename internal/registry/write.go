package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RecordDeploy persists a successful deploy inside the caller's transaction:
// the change row, its dependency rows, any tags applied with it, and a
// "deploy" event. The transaction is the one the change script ran in when
// the tool manages transactions, so a script failure never leaves a registry
// row behind.
func (s *Store) RecordDeploy(ctx context.Context, tx *sql.Tx, rec DeployRecord) error {
	now := s.now()
	var scriptHash any
	if rec.ScriptHash != "" {
		scriptHash = rec.ScriptHash
	}
	_, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO `+s.table("changes")+`
		 (change_id, script_hash, `+s.quoteChange()+`, project, note, committed_at,
		  committer_name, committer_email, planned_at, planner_name, planner_email)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ChangeID, scriptHash, rec.Change, rec.Project, rec.Note, formatTime(now),
		rec.CommitterName, rec.CommitterEmail, formatTime(rec.PlannedAt),
		rec.PlannerName, rec.PlannerEmail)
	if err != nil {
		return fmt.Errorf("record deploy of %s: %w", rec.Change, err)
	}

	for _, dep := range rec.Dependencies {
		var depID any
		if dep.ID != "" {
			depID = dep.ID
		}
		_, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO `+s.table("dependencies")+` (change_id, type, dependency, dependency_id)
			 VALUES (?, ?, ?, ?)`),
			rec.ChangeID, dep.Type, dep.Name, depID)
		if err != nil {
			return fmt.Errorf("record dependency %s of %s: %w", dep.Name, rec.Change, err)
		}
	}

	for _, tag := range rec.Tags {
		_, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO `+s.table("tags")+`
			 (tag_id, tag, project, change_id, note, committed_at,
			  committer_name, committer_email, planned_at, planner_name, planner_email)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			tag.TagID, "@"+tag.Tag, rec.Project, rec.ChangeID, tag.Note, formatTime(now),
			rec.CommitterName, rec.CommitterEmail, formatTime(tag.PlannedAt),
			tag.PlannerName, tag.PlannerEmail)
		if err != nil {
			return fmt.Errorf("record tag @%s of %s: %w", tag.Tag, rec.Change, err)
		}
	}

	return s.insertEvent(ctx, tx, "deploy", eventRow{
		ChangeID: rec.ChangeID, Change: rec.Change, Project: rec.Project, Note: rec.Note,
		Requires: depNames(rec.Dependencies, "require"), Conflicts: depNames(rec.Dependencies, "conflict"),
		Tags:           tagNames(rec.Tags),
		CommittedAt:    now,
		CommitterName:  rec.CommitterName, CommitterEmail: rec.CommitterEmail,
		PlannedAt: rec.PlannedAt, PlannerName: rec.PlannerName, PlannerEmail: rec.PlannerEmail,
	})
}

// RecordRevert removes a deployed change inside the caller's transaction.
// Tag rows go first (they reference the change row), then the change row
// itself; the ON DELETE CASCADE on dependencies makes the rest a single
// atomic delete. A "revert" event is appended.
func (s *Store) RecordRevert(ctx context.Context, tx *sql.Tx, rec RevertRecord) error {
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM `+s.table("tags")+` WHERE change_id = ?`), rec.ChangeID); err != nil {
		return fmt.Errorf("delete tags of %s: %w", rec.Change, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM `+s.table("changes")+` WHERE change_id = ?`), rec.ChangeID)
	if err != nil {
		return fmt.Errorf("record revert of %s: %w", rec.Change, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("revert of %s: change %s not in registry", rec.Change, rec.ChangeID)
	}
	return s.insertEvent(ctx, tx, "revert", eventRow{
		ChangeID: rec.ChangeID, Change: rec.Change, Project: rec.Project, Note: rec.Note,
		Requires: rec.Requires, Conflicts: rec.Conflicts, Tags: rec.Tags,
		CommittedAt:   s.now(),
		CommitterName: rec.CommitterName, CommitterEmail: rec.CommitterEmail,
		PlannedAt: rec.PlannedAt, PlannerName: rec.PlannerName, PlannerEmail: rec.PlannerEmail,
	})
}

// RecordFail appends a "fail" event in its own short transaction, after the
// failed change's transaction has rolled back.
func (s *Store) RecordFail(ctx context.Context, rec FailRecord) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	err = s.insertEvent(ctx, tx, "fail", eventRow{
		ChangeID: rec.ChangeID, Change: rec.Change, Project: rec.Project, Note: rec.Note,
		Requires: rec.Requires, Conflicts: rec.Conflicts, Tags: rec.Tags,
		CommittedAt:   s.now(),
		CommitterName: rec.CommitterName, CommitterEmail: rec.CommitterEmail,
		PlannedAt: rec.PlannedAt, PlannerName: rec.PlannerName, PlannerEmail: rec.PlannerEmail,
	})
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type eventRow struct {
	ChangeID, Change, Project, Note string
	Requires, Conflicts, Tags       []string
	CommittedAt                     time.Time
	CommitterName, CommitterEmail   string
	PlannedAt                       time.Time
	PlannerName, PlannerEmail       string
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, event string, row eventRow) error {
	_, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO `+s.table("events")+`
		 (event, change_id, `+s.quoteChange()+`, project, note, requires, conflicts, tags,
		  committed_at, committer_name, committer_email, planned_at, planner_name, planner_email)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event, row.ChangeID, row.Change, row.Project, row.Note,
		strings.Join(row.Requires, " "), strings.Join(row.Conflicts, " "), strings.Join(row.Tags, " "),
		formatTime(row.CommittedAt), row.CommitterName, row.CommitterEmail,
		formatTime(row.PlannedAt), row.PlannerName, row.PlannerEmail)
	if err != nil {
		return fmt.Errorf("record %s event for %s: %w", event, row.Change, err)
	}
	return nil
}

// quoteChange returns the "change" column name, quoted for MySQL where it
// is a reserved word.
func (s *Store) quoteChange() string {
	if s.flavor == MySQL {
		return "`change`"
	}
	return "change"
}

func depNames(deps []Dependency, typ string) []string {
	var out []string
	for _, d := range deps {
		if d.Type == typ {
			out = append(out, d.Name)
		}
	}
	return out
}

func tagNames(tags []TagRecord) []string {
	var out []string
	for _, t := range tags {
		out = append(out, "@"+t.Tag)
	}
	return out
}
