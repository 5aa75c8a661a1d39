package plan

import (
	"strings"
)

// Format renders the plan back to its textual form, byte-stable: parsing the
// output yields an equivalent plan with identical change and tag IDs. Used by
// the plan-mutating operations (add, tag, rework) to rewrite the plan file.
func Format(p *Plan) []byte {
	var b strings.Builder
	b.WriteString("%syntax-version=")
	if p.SyntaxVersion != "" {
		b.WriteString(p.SyntaxVersion)
	} else {
		b.WriteString(SyntaxVersion)
	}
	b.WriteByte('\n')
	b.WriteString("%project=")
	b.WriteString(p.Project)
	b.WriteByte('\n')
	if p.URI != "" {
		b.WriteString("%uri=")
		b.WriteString(p.URI)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	for _, e := range p.entries {
		switch e := e.(type) {
		case *Change:
			b.WriteString(formatChangeLine(e))
		case *Tag:
			b.WriteString(formatTagLine(e))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func formatChangeLine(c *Change) string {
	var b strings.Builder
	b.WriteString(c.Name)
	if len(c.Requires) > 0 || len(c.Conflicts) > 0 {
		b.WriteString(" [")
		for i, dep := range c.Requires {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(dep)
		}
		for i, dep := range c.Conflicts {
			if i > 0 || len(c.Requires) > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte('!')
			b.WriteString(dep)
		}
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(FormatTimestamp(c.PlannedAt))
	b.WriteByte(' ')
	b.WriteString(c.PlannerName)
	b.WriteString(" <")
	b.WriteString(c.PlannerEmail)
	b.WriteByte('>')
	if c.Note != "" {
		b.WriteString(" # ")
		b.WriteString(EscapeNote(c.Note))
	}
	return b.String()
}

func formatTagLine(t *Tag) string {
	var b strings.Builder
	b.WriteByte('@')
	b.WriteString(t.Name)
	b.WriteByte(' ')
	b.WriteString(FormatTimestamp(t.TaggedAt))
	b.WriteByte(' ')
	b.WriteString(t.PlannerName)
	b.WriteString(" <")
	b.WriteString(t.PlannerEmail)
	b.WriteByte('>')
	if t.Note != "" {
		b.WriteString(" # ")
		b.WriteString(EscapeNote(t.Note))
	}
	return b.String()
}
