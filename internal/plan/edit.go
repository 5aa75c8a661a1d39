package plan

import (
	"fmt"
	"time"
)

// AddChange appends a new change entry and computes its ID against the
// current chain head. Fails if the name is already the latest version of
// itself; reintroducing a name goes through AddRework.
func (p *Plan) AddChange(name string, requires, conflicts []string, plannedAt time.Time, plannerName, plannerEmail, note string) (*Change, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid change name %q", name)
	}
	if p.LatestVersion(name) != nil {
		return nil, fmt.Errorf("change %q already exists in plan %s; use rework to supersede it", name, p.Project)
	}
	return p.append(name, requires, conflicts, plannedAt, plannerName, plannerEmail, note, ""), nil
}

// AddRework appends a new entry for an existing name, superseding the prior
// occurrence. The prior occurrence must be pinned by a tag at or after its
// position; the new entry depends on "name@tag" so both versions stay
// addressable.
func (p *Plan) AddRework(name string, requires []string, plannedAt time.Time, plannerName, plannerEmail, note string) (*Change, error) {
	prior := p.LatestVersion(name)
	if prior == nil {
		return nil, fmt.Errorf("cannot rework %q: not in plan %s", name, p.Project)
	}
	positions := p.byName[name]
	priorPos := positions[len(positions)-1]
	tag := ""
	for _, t := range p.tagSeq {
		if p.tagPos[t] >= priorPos {
			tag = t
			break
		}
	}
	if tag == "" {
		return nil, fmt.Errorf("cannot rework %q: no tag follows its most recent occurrence; tag the plan first", name)
	}
	pin := name + "@" + tag
	reqs := append([]string{pin}, requires...)
	c := p.append(name, reqs, nil, plannedAt, plannerName, plannerEmail, note, pin)
	return c, nil
}

// AddTag appends a tag on the last change in the plan.
func (p *Plan) AddTag(name string, taggedAt time.Time, plannerName, plannerEmail, note string) (*Tag, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid tag name %q", name)
	}
	if _, ok := p.tags[name]; ok {
		return nil, fmt.Errorf("tag %q already exists in plan %s", name, p.Project)
	}
	if len(p.changes) == 0 {
		return nil, fmt.Errorf("cannot tag an empty plan")
	}
	last := p.changes[len(p.changes)-1]
	t := &Tag{
		Name:         name,
		ChangeID:     last.ID,
		PlannerName:  plannerName,
		PlannerEmail: plannerEmail,
		TaggedAt:     taggedAt.UTC().Truncate(time.Second),
		Note:         note,
	}
	t.ID = TagID(p.Project, t.Name, t.ChangeID, t.TaggedAt, t.PlannerName, t.PlannerEmail, t.Note)
	p.appendTag(t)
	return t, nil
}

func (p *Plan) append(name string, requires, conflicts []string, plannedAt time.Time, plannerName, plannerEmail, note, reworkOf string) *Change {
	parentID := ""
	if n := len(p.changes); n > 0 {
		parentID = p.changes[n-1].ID
	}
	c := &Change{
		Name:         name,
		Requires:     requires,
		Conflicts:    conflicts,
		PlannerName:  plannerName,
		PlannerEmail: plannerEmail,
		PlannedAt:    plannedAt.UTC().Truncate(time.Second),
		Note:         note,
		ReworkOf:     reworkOf,
		ParentID:     parentID,
	}
	c.ID = ChangeID(p.URI, c.Name, c.PlannedAt, c.PlannerName, c.PlannerEmail, c.Note, c.Requires, c.Conflicts, parentID)
	p.appendChange(c)
	return c
}
