package plan

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Object-header prefixes for content-addressed identity. The registry is
// shared with an independent implementation of this tool, so the exact bytes
// here are an external contract: any drift in field order, whitespace, or
// timestamp formatting produces a different digest and silently breaks
// interoperability. Formatting logic must never leak out of this file.
const (
	headerChange = "change"
	headerTag    = "tag"
)

// ChangeID computes the identity digest for a change: SHA-1 over
// "change {len}\x00" plus the canonical info block built by ChangeInfo.
// Deterministic for a fixed input tuple, across process restarts.
func ChangeID(uri, name string, plannedAt time.Time, plannerName, plannerEmail, note string, requires, conflicts []string, parentID string) string {
	return digest(headerChange, ChangeInfo(uri, name, plannedAt, plannerName, plannerEmail, note, requires, conflicts, parentID))
}

// ChangeInfo builds the canonical byte serialization hashed by ChangeID.
// Layout, in order:
//
//	uri {project_uri}      only if a URI is set
//	change {name}
//	parent {parent_id}     only if parentID is non-empty
//	requires               only if non-empty, one dependency per
//	  {dependency}         two-space-indented line, verbatim (pins kept)
//	conflicts              analogous
//	planner {name} <{email}>
//	date {ISO-8601 UTC, Z suffix, second precision}
//	{blank line}
//	{note verbatim}
func ChangeInfo(uri, name string, plannedAt time.Time, plannerName, plannerEmail, note string, requires, conflicts []string, parentID string) []byte {
	var b strings.Builder
	if uri != "" {
		b.WriteString("uri ")
		b.WriteString(uri)
		b.WriteByte('\n')
	}
	b.WriteString("change ")
	b.WriteString(name)
	b.WriteByte('\n')
	if parentID != "" {
		b.WriteString("parent ")
		b.WriteString(parentID)
		b.WriteByte('\n')
	}
	writeRefBlock(&b, "requires", requires)
	writeRefBlock(&b, "conflicts", conflicts)
	b.WriteString("planner ")
	b.WriteString(plannerName)
	b.WriteString(" <")
	b.WriteString(plannerEmail)
	b.WriteString(">\n")
	b.WriteString("date ")
	b.WriteString(FormatTimestamp(plannedAt))
	b.WriteString("\n\n")
	b.WriteString(note)
	return []byte(b.String())
}

// TagID computes the identity digest for a tag. Same object-header scheme as
// ChangeID, with a "tag" header and the tagged change's ID in the body.
func TagID(project, tag, changeID string, taggedAt time.Time, plannerName, plannerEmail, note string) string {
	var b strings.Builder
	b.WriteString("project ")
	b.WriteString(project)
	b.WriteByte('\n')
	b.WriteString("tag @")
	b.WriteString(tag)
	b.WriteByte('\n')
	b.WriteString("change ")
	b.WriteString(changeID)
	b.WriteByte('\n')
	b.WriteString("planner ")
	b.WriteString(plannerName)
	b.WriteString(" <")
	b.WriteString(plannerEmail)
	b.WriteString(">\n")
	b.WriteString("date ")
	b.WriteString(FormatTimestamp(taggedAt))
	b.WriteString("\n\n")
	b.WriteString(note)
	return digest(headerTag, []byte(b.String()))
}

// FormatTimestamp renders a timestamp the one way the identity contract and
// the plan grammar allow: ISO-8601, UTC, Z suffix, second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func writeRefBlock(b *strings.Builder, label string, refs []string) {
	if len(refs) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteByte('\n')
	for _, r := range refs {
		b.WriteString("  ")
		b.WriteString(r)
		b.WriteByte('\n')
	}
}

// digest hashes "{header} {len}\x00{body}" with SHA-1 and returns lowercase
// hex. SHA-1 is not a security boundary here; it is the digest the shared
// registry format is defined in terms of.
func digest(header string, body []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", header, len(body))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
