package plan

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
)

// SyntaxVersion is the plan syntax version this parser reads and writes.
const SyntaxVersion = "1.0.0"

// Parse reads a plan from r. Returns a *ParseError for malformed input.
//
// Structural rules enforced here:
//   - pragmas ("%key=value") must precede all entries; %project is required
//   - a tag cannot precede the first change
//   - duplicate tag names fail, citing both line numbers
//   - duplicate change names are legal (rework)
//
// Dependencies naming a change not yet seen are recorded in
// MissingDependencies rather than failing, to tolerate compact
// forward-reference syntax.
func Parse(r io.Reader) (*Plan, error) {
	p := newPlan()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lineno   int
		sawEntry bool
		parentID string
		tagLines = make(map[string]int)
	)

	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue

		case strings.HasPrefix(trimmed, "%"):
			if sawEntry {
				return nil, &ParseError{Line: lineno, Message: "pragma after first entry"}
			}
			if err := p.parsePragma(trimmed, lineno); err != nil {
				return nil, err
			}

		case strings.HasPrefix(trimmed, "@"):
			sawEntry = true
			t, err := parseTagLine(trimmed, lineno)
			if err != nil {
				return nil, err
			}
			if len(p.changes) == 0 {
				return nil, &ParseError{Line: lineno, Message: fmt.Sprintf("tag %q declared before any change", t.Name)}
			}
			if first, ok := tagLines[t.Name]; ok {
				return nil, &ParseError{Line: lineno, OtherLine: first, Message: fmt.Sprintf("duplicate tag %q", t.Name)}
			}
			tagLines[t.Name] = lineno
			prev := p.changes[len(p.changes)-1]
			t.ChangeID = prev.ID
			t.ID = TagID(p.Project, t.Name, prev.ID, t.TaggedAt, t.PlannerName, t.PlannerEmail, t.Note)
			p.appendTag(t)

		default:
			sawEntry = true
			if p.Project == "" {
				return nil, &ParseError{Line: lineno, Message: "change declared before %project pragma"}
			}
			c, err := parseChangeLine(trimmed, lineno)
			if err != nil {
				return nil, err
			}
			p.noteMissingDeps(c)
			p.markRework(c)
			c.ParentID = parentID
			c.ID = ChangeID(p.URI, c.Name, c.PlannedAt, c.PlannerName, c.PlannerEmail, c.Note, c.Requires, c.Conflicts, parentID)
			parentID = c.ID
			p.appendChange(c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if p.Project == "" {
		return nil, &ParseError{Message: "missing %project pragma"}
	}
	if p.SyntaxVersion == "" {
		p.SyntaxVersion = SyntaxVersion
	}
	return p, nil
}

// ParseString is Parse over an in-memory plan text.
func ParseString(text string) (*Plan, error) {
	return Parse(strings.NewReader(text))
}

func (p *Plan) parsePragma(line string, lineno int) error {
	body := strings.TrimPrefix(line, "%")
	key, value, ok := strings.Cut(body, "=")
	if !ok {
		return &ParseError{Line: lineno, Message: fmt.Sprintf("malformed pragma %q", line)}
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	switch key {
	case "syntax-version":
		p.SyntaxVersion = value
	case "project":
		if !validProjectName(value) {
			return &ParseError{Line: lineno, Message: fmt.Sprintf("invalid project name %q", value)}
		}
		p.Project = value
	case "uri":
		p.URI = value
	default:
		// Unknown pragmas are carried by other implementations; ignore.
	}
	return nil
}

// noteMissingDeps records any dependency whose base name has not been seen
// at an earlier position, as "{change}->{dependency}".
func (p *Plan) noteMissingDeps(c *Change) {
	for _, dep := range c.Requires {
		if len(p.byName[DependencyBase(dep)]) == 0 {
			p.MissingDependencies = append(p.MissingDependencies, c.Name+"->"+dep)
		}
	}
}

// markRework sets ReworkOf when the change name has appeared before. The
// pinned reference is taken from a "name@tag" dependency when one names the
// change itself, falling back to the bare name.
func (p *Plan) markRework(c *Change) {
	if len(p.byName[c.Name]) == 0 {
		return
	}
	c.ReworkOf = c.Name
	for _, dep := range c.Requires {
		if DependencyBase(dep) == c.Name && strings.ContainsRune(dep, '@') {
			c.ReworkOf = dep
			break
		}
	}
}

// parseChangeLine parses "name [deps] timestamp planner <email> # note".
func parseChangeLine(line string, lineno int) (*Change, error) {
	name, rest, _ := cutFields(line)
	if err := validateName("change", name, lineno); err != nil {
		return nil, err
	}
	c := &Change{Name: name, line: lineno}

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, &ParseError{Line: lineno, Message: "unterminated dependency list"}
		}
		for _, dep := range strings.Fields(rest[1:end]) {
			if bang, ok := strings.CutPrefix(dep, "!"); ok {
				c.Conflicts = append(c.Conflicts, bang)
			} else {
				c.Requires = append(c.Requires, dep)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	var err error
	c.PlannedAt, rest, err = parseTimestamp(rest, lineno)
	if err != nil {
		return nil, err
	}
	c.PlannerName, c.PlannerEmail, c.Note, err = parsePlannerNote(rest, lineno)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// parseTagLine parses "@name timestamp planner <email> # note".
func parseTagLine(line string, lineno int) (*Tag, error) {
	name, rest, _ := cutFields(strings.TrimPrefix(line, "@"))
	if err := validateName("tag", name, lineno); err != nil {
		return nil, err
	}
	t := &Tag{Name: name, line: lineno}

	var err error
	t.TaggedAt, rest, err = parseTimestamp(rest, lineno)
	if err != nil {
		return nil, err
	}
	t.PlannerName, t.PlannerEmail, t.Note, err = parsePlannerNote(rest, lineno)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func parseTimestamp(rest string, lineno int) (time.Time, string, error) {
	field, rest, ok := cutFields(rest)
	if !ok && field == "" {
		return time.Time{}, "", &ParseError{Line: lineno, Message: "missing timestamp"}
	}
	ts, err := time.Parse("2006-01-02T15:04:05Z", field)
	if err != nil {
		return time.Time{}, "", &ParseError{Line: lineno, Message: fmt.Sprintf("malformed timestamp %q", field)}
	}
	return ts.UTC(), rest, nil
}

// parsePlannerNote parses the trailing "Name Words <email> # note" section.
// The note is everything after the "#" delimiter to end of line, unescaped.
func parsePlannerNote(rest string, lineno int) (name, email, note string, err error) {
	lt := strings.IndexByte(rest, '<')
	gt := strings.IndexByte(rest, '>')
	if lt < 0 || gt < lt {
		return "", "", "", &ParseError{Line: lineno, Message: "missing planner email in <angle brackets>"}
	}
	name = strings.TrimSpace(rest[:lt])
	if name == "" {
		return "", "", "", &ParseError{Line: lineno, Message: "missing planner name"}
	}
	email = rest[lt+1 : gt]
	if email == "" {
		return "", "", "", &ParseError{Line: lineno, Message: "empty planner email"}
	}
	tail := strings.TrimSpace(rest[gt+1:])
	if tail != "" {
		body, ok := strings.CutPrefix(tail, "#")
		if !ok {
			return "", "", "", &ParseError{Line: lineno, Message: fmt.Sprintf("unexpected trailing text %q", tail)}
		}
		note = UnescapeNote(strings.TrimSpace(body))
	}
	return name, email, note, nil
}

// EscapeNote renders a note for a single plan line: backslashes doubled,
// newlines written as "\n". The "#" needs no escaping because the note runs
// to end of line.
func EscapeNote(note string) string {
	note = strings.ReplaceAll(note, `\`, `\\`)
	note = strings.ReplaceAll(note, "\r\n", `\n`)
	note = strings.ReplaceAll(note, "\n", `\n`)
	return note
}

// UnescapeNote is the inverse of EscapeNote.
func UnescapeNote(note string) string {
	var b strings.Builder
	for i := 0; i < len(note); i++ {
		if note[i] == '\\' && i+1 < len(note) {
			switch note[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(note[i])
	}
	return b.String()
}

// cutFields splits off the first whitespace-delimited field.
func cutFields(s string) (first, rest string, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, "", false
	}
	return s[:i], strings.TrimSpace(s[i:]), true
}

// reservedNameChars may not appear anywhere in a change or tag name; they
// all carry meaning in the symbolic reference grammar or the plan syntax.
const reservedNameChars = "@#[]^~:\\/"

func validateName(kind, name string, lineno int) error {
	if !validName(name) {
		return &ParseError{Line: lineno, Message: fmt.Sprintf("invalid %s name %q", kind, name)}
	}
	return nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	runes := []rune(name)
	if isPunct(runes[0]) || isPunct(runes[len(runes)-1]) {
		return false
	}
	digitsOnly := true
	for _, r := range runes {
		if unicode.IsSpace(r) || strings.ContainsRune(reservedNameChars, r) {
			return false
		}
		if !unicode.IsDigit(r) {
			digitsOnly = false
		}
	}
	// An all-digit name would be indistinguishable from an offset count.
	return !digitsOnly
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func validProjectName(name string) bool {
	return validName(name)
}
