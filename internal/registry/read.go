package registry

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentState returns the currently-deployed changes for the project in
// deploy order (committed_at ascending, which external interference aside
// matches plan order).
func (s *Store) CurrentState(ctx context.Context, project string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT change_id, script_hash, `+s.quoteChange()+`, project, note, committed_at,
		        committer_name, committer_email, planned_at, planner_name, planner_email
		 FROM `+s.table("changes")+`
		 WHERE project = ?
		 ORDER BY committed_at ASC, change_id ASC`), project)
	if err != nil {
		return nil, fmt.Errorf("query deployed changes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                    Record
			scriptHash             sql.NullString
			committedAt, plannedAt string
		)
		if err := rows.Scan(&rec.ChangeID, &scriptHash, &rec.Change, &rec.Project, &rec.Note,
			&committedAt, &rec.CommitterName, &rec.CommitterEmail,
			&plannedAt, &rec.PlannerName, &rec.PlannerEmail); err != nil {
			return nil, fmt.Errorf("scan deployed change: %w", err)
		}
		rec.ScriptHash = scriptHash.String
		if rec.CommittedAt, err = ParseTime(committedAt); err != nil {
			return nil, err
		}
		if rec.PlannedAt, err = ParseTime(plannedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployed changes: %w", err)
	}

	if err := s.attachTags(ctx, project, records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// attachTags fills rec.Tags for every record from one tags query.
func (s *Store) attachTags(ctx context.Context, project string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT change_id, tag FROM `+s.table("tags")+`
		 WHERE project = ?
		 ORDER BY committed_at ASC, tag ASC`), project)
	if err != nil {
		return fmt.Errorf("query deployed tags: %w", err)
	}
	defer rows.Close()

	byChange := make(map[string][]string)
	for rows.Next() {
		var changeID, tag string
		if err := rows.Scan(&changeID, &tag); err != nil {
			return fmt.Errorf("scan deployed tag: %w", err)
		}
		byChange[changeID] = append(byChange[changeID], tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate deployed tags: %w", err)
	}
	for i := range records {
		records[i].Tags = byChange[records[i].ChangeID]
	}
	return nil
}

// DeployedIDs returns the change_ids currently deployed, in deploy order.
func (s *Store) DeployedIDs(ctx context.Context, project string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT change_id FROM `+s.table("changes")+`
		 WHERE project = ?
		 ORDER BY committed_at ASC, change_id ASC`), project)
	if err != nil {
		return nil, fmt.Errorf("query deployed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deployed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployed ids: %w", err)
	}
	return ids, nil
}

// IsDeployed reports whether the change is currently deployed.
func (s *Store) IsDeployed(ctx context.Context, changeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM `+s.table("changes")+` WHERE change_id = ?`), changeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query change %s: %w", changeID, err)
	}
	return n > 0, nil
}

// Dependent identifies a deployed change that requires another.
type Dependent struct {
	ChangeID string
	Change   string
}

// Dependents returns deployed changes whose "require" dependency rows point
// at changeID. Used to refuse a revert that would strand dependents.
func (s *Store) Dependents(ctx context.Context, changeID string) ([]Dependent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT c.change_id, c.`+s.quoteChange()+`
		 FROM `+s.table("dependencies")+` d
		 JOIN `+s.table("changes")+` c ON c.change_id = d.change_id
		 WHERE d.dependency_id = ? AND d.type = 'require'
		 ORDER BY c.committed_at ASC`), changeID)
	if err != nil {
		return nil, fmt.Errorf("query dependents of %s: %w", changeID, err)
	}
	defer rows.Close()

	var deps []Dependent
	for rows.Next() {
		var d Dependent
		if err := rows.Scan(&d.ChangeID, &d.Change); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependents: %w", err)
	}
	return deps, nil
}
