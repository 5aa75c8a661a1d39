package plan

import (
	"strings"
	"time"
)

// Entry is one line of the plan: either a *Change or a *Tag.
type Entry interface {
	entry()
}

// Change is one schema modification. Multiple changes MAY share a name
// (rework); they are distinguished by plan position. Immutable once parsed.
type Change struct {
	// Name of the change. Not unique across the plan.
	Name string

	// Requires holds dependency references verbatim, including rework pins
	// of the form "name@tag". Pins are stripped to their base name for
	// deployment-order validation but hashed and resolved as written.
	Requires []string

	// Conflicts holds references this change declares conflicts with
	// (written "!name" in the plan file, stored without the bang).
	Conflicts []string

	PlannerName  string
	PlannerEmail string
	PlannedAt    time.Time // UTC, second precision
	Note         string

	// ReworkOf is the reference this entry supersedes ("name@tag"), empty
	// for a first occurrence.
	ReworkOf string

	// ID is the content-derived identity digest (40 hex characters).
	ID string

	// ParentID is the ID of the chronologically preceding change, empty for
	// the first change in the plan. It encodes chronology, not dependency.
	ParentID string

	line int
}

func (*Change) entry() {}

// Line reports the 1-based plan file line the change was parsed from,
// or 0 for appended entries.
func (c *Change) Line() int { return c.line }

// Tag is a named marker on the change immediately preceding it in the plan.
// Tag names are unique across the whole plan.
type Tag struct {
	Name         string
	ID           string
	ChangeID     string // ID of the change the tag annotates
	PlannerName  string
	PlannerEmail string
	TaggedAt     time.Time
	Note         string

	line int
}

func (*Tag) entry() {}

// Line reports the 1-based plan file line the tag was parsed from.
func (t *Tag) Line() int { return t.line }

// Plan is the ordered container of changes and tags for one project.
// Mutated only by appending; never reordered.
type Plan struct {
	Project       string
	URI           string
	SyntaxVersion string

	// MissingDependencies records dependencies whose base name had not been
	// seen earlier in the file, as "{change}->{dependency}". These are
	// warnings, not parse failures; downstream commands decide.
	MissingDependencies []string

	entries []Entry
	changes []*Change
	tags    map[string]*Tag
	byName  map[string][]int // change name -> indexes into changes, in order
	tagPos  map[string]int   // tag name -> index into changes of tagged change
	tagSeq  []string         // tag names in plan order
	byID    map[string]int   // change ID -> index into changes
}

// Entries returns the full ordered entry list, changes and tags interleaved.
func (p *Plan) Entries() []Entry { return p.entries }

// Changes returns the change subsequence of the plan in order.
func (p *Plan) Changes() []*Change { return p.changes }

// Change returns the change at position i of the change subsequence.
func (p *Plan) Change(i int) *Change { return p.changes[i] }

// AllVersions returns every occurrence of name in plan order.
// Returns nil if the name never appears.
func (p *Plan) AllVersions(name string) []*Change {
	idx := p.byName[name]
	if len(idx) == 0 {
		return nil
	}
	out := make([]*Change, len(idx))
	for i, j := range idx {
		out[i] = p.changes[j]
	}
	return out
}

// LatestVersion returns the most recent occurrence of name, or nil.
func (p *Plan) LatestVersion(name string) *Change {
	idx := p.byName[name]
	if len(idx) == 0 {
		return nil
	}
	return p.changes[idx[len(idx)-1]]
}

// PositionOf returns the change-subsequence position of the change with the
// given ID, or -1 if no change has that ID.
func (p *Plan) PositionOf(changeID string) int {
	if i, ok := p.byID[changeID]; ok {
		return i
	}
	return -1
}

// Positions returns the change-subsequence positions of every occurrence
// of name, in plan order.
func (p *Plan) Positions(name string) []int { return p.byName[name] }

// Tag returns the tag with the given name (without "@"), or nil.
func (p *Plan) Tag(name string) *Tag { return p.tags[name] }

// TagPosition returns the change-subsequence position the tag points at,
// or -1 if the tag does not exist.
func (p *Plan) TagPosition(name string) int {
	if i, ok := p.tagPos[name]; ok {
		return i
	}
	return -1
}

// Tags returns all tag names in plan order.
func (p *Plan) Tags() []string { return p.tagSeq }

// LastTag returns the name of the most recent tag in the plan, or "".
func (p *Plan) LastTag() string {
	if len(p.tagSeq) == 0 {
		return ""
	}
	return p.tagSeq[len(p.tagSeq)-1]
}

// TagsFor returns the names of tags attached to the change at position i.
func (p *Plan) TagsFor(i int) []string {
	var out []string
	for _, name := range p.tagSeq {
		if p.tagPos[name] == i {
			out = append(out, name)
		}
	}
	return out
}

// ScriptTag reports which tag qualifies the script files of the change at
// position i. Superseded occurrences keep their scripts under
// "name@tag.sql", where tag is the first tag applied at or after the
// occurrence; the latest occurrence owns the unqualified "name.sql".
func (p *Plan) ScriptTag(i int) string {
	c := p.changes[i]
	idx := p.byName[c.Name]
	if idx[len(idx)-1] == i {
		return "" // latest occurrence
	}
	for _, name := range p.tagSeq {
		if p.tagPos[name] >= i {
			return name
		}
	}
	return ""
}

// ScriptName returns the file stem for the change at position i:
// "name" for the latest occurrence, "name@tag" for superseded ones.
func (p *Plan) ScriptName(i int) string {
	if tag := p.ScriptTag(i); tag != "" {
		return p.changes[i].Name + "@" + tag
	}
	return p.changes[i].Name
}

// DependencyBase strips a rework pin from a dependency reference,
// returning the bare change name used for deployment-order validation.
func DependencyBase(dep string) string {
	if i := strings.IndexByte(dep, '@'); i >= 0 {
		return dep[:i]
	}
	return dep
}

// appendChange links a parsed or newly planned change into the indexes.
// Caller is responsible for having computed the ID chain.
func (p *Plan) appendChange(c *Change) {
	p.entries = append(p.entries, c)
	p.changes = append(p.changes, c)
	p.byName[c.Name] = append(p.byName[c.Name], len(p.changes)-1)
	p.byID[c.ID] = len(p.changes) - 1
}

// appendTag links a tag into the indexes. The tag always annotates the most
// recently appended change.
func (p *Plan) appendTag(t *Tag) {
	p.entries = append(p.entries, t)
	p.tags[t.Name] = t
	p.tagPos[t.Name] = len(p.changes) - 1
	p.tagSeq = append(p.tagSeq, t.Name)
}

func newPlan() *Plan {
	return &Plan{
		tags:   make(map[string]*Tag),
		byName: make(map[string][]int),
		tagPos: make(map[string]int),
		byID:   make(map[string]int),
	}
}
