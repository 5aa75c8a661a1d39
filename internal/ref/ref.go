// Package ref resolves symbolic reference expressions against a plan.
//
// Grammar:
//
//	@ROOT            first change in the plan
//	@HEAD            last change in the plan
//	@tag             the change the tag annotates
//	name             the latest occurrence of a change name
//	name@tag         the occurrence of name in effect when tag was applied
//	<base>^          one change back (repeatable; ^N for N back)
//	<base>~N         N changes back (~ alone means one)
//
// Offsets walk the change subsequence of the plan in order; tags are
// markers, not steps. Names may repeat (rework), which is why bare names
// resolve to the latest occurrence and pinned "name@tag" forms resolve to a
// specific one.
package ref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/plan"
)

// Kind categorizes resolution failures.
type Kind string

const (
	// KindUnknown means the base name or tag does not exist in the plan.
	KindUnknown Kind = "UNKNOWN_REFERENCE"

	// KindAmbiguous means the reference matches more than one kind of
	// object (a change name and a tag share the spelling).
	KindAmbiguous Kind = "AMBIGUOUS_REFERENCE"

	// KindOutOfRange means an offset walked past the root of the plan.
	KindOutOfRange Kind = "OUT_OF_RANGE"

	// KindMalformed means the reference expression itself does not parse.
	KindMalformed Kind = "MALFORMED_REFERENCE"
)

// Error is a resolution failure. Fatal for the single operation requested.
type Error struct {
	Kind    Kind
	Ref     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: cannot resolve %q: %s", e.Kind, e.Ref, e.Message)
}

// IsOutOfRange reports whether err is an out-of-range resolution error.
func IsOutOfRange(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindOutOfRange
}

// Resolve resolves ref to a position in the plan's change subsequence.
func Resolve(p *plan.Plan, ref string) (int, error) {
	base, offset, err := split(ref)
	if err != nil {
		return 0, err
	}
	pos, err := resolveBase(p, ref, base)
	if err != nil {
		return 0, err
	}
	pos -= offset
	if pos < 0 {
		return 0, &Error{Kind: KindOutOfRange, Ref: ref, Message: fmt.Sprintf("offset reaches %d changes before the root", -pos)}
	}
	return pos, nil
}

// ResolveChange is Resolve returning the change itself.
func ResolveChange(p *plan.Plan, ref string) (*plan.Change, error) {
	pos, err := Resolve(p, ref)
	if err != nil {
		return nil, err
	}
	return p.Change(pos), nil
}

// split separates the base expression from trailing ^ and ~ offsets and
// sums the offsets. Offset characters are reserved, so the first one found
// ends the base.
func split(ref string) (base string, offset int, err error) {
	cut := strings.IndexAny(ref, "^~")
	if cut < 0 {
		return ref, 0, nil
	}
	base, suffix := ref[:cut], ref[cut:]
	for len(suffix) > 0 {
		op := suffix[0]
		suffix = suffix[1:]
		n := 1
		if i := digitSpan(suffix); i > 0 {
			n, err = strconv.Atoi(suffix[:i])
			if err != nil || n < 0 {
				return "", 0, &Error{Kind: KindMalformed, Ref: ref, Message: "bad offset count"}
			}
			suffix = suffix[i:]
		}
		if op != '^' && op != '~' {
			return "", 0, &Error{Kind: KindMalformed, Ref: ref, Message: fmt.Sprintf("unexpected %q in offset", string(op))}
		}
		offset += n
	}
	return base, offset, nil
}

func digitSpan(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func resolveBase(p *plan.Plan, ref, base string) (int, error) {
	n := len(p.Changes())
	if n == 0 {
		return 0, &Error{Kind: KindUnknown, Ref: ref, Message: "plan has no changes"}
	}

	switch {
	case base == "":
		return 0, &Error{Kind: KindMalformed, Ref: ref, Message: "empty base expression"}

	case base == "@ROOT":
		return 0, nil

	case base == "@HEAD":
		return n - 1, nil

	case strings.HasPrefix(base, "@"):
		tag := strings.TrimPrefix(base, "@")
		if pos := p.TagPosition(tag); pos >= 0 {
			return pos, nil
		}
		return 0, &Error{Kind: KindUnknown, Ref: ref, Message: fmt.Sprintf("tag %q is not in the plan", tag)}

	case strings.ContainsRune(base, '@'):
		name, tag, _ := strings.Cut(base, "@")
		return resolvePinned(p, ref, name, tag)

	default:
		return resolveName(p, ref, base)
	}
}

// resolvePinned resolves "name@tag": the occurrence of name in effect at
// the point the tag was applied. Not necessarily the latest occurrence —
// this is what makes rework pins work.
func resolvePinned(p *plan.Plan, ref, name, tag string) (int, error) {
	limit := 0
	switch tag {
	case "HEAD":
		limit = len(p.Changes()) - 1
	case "ROOT":
		limit = 0
	default:
		if limit = p.TagPosition(tag); limit < 0 {
			return 0, &Error{Kind: KindUnknown, Ref: ref, Message: fmt.Sprintf("tag %q is not in the plan", tag)}
		}
	}
	positions := p.Positions(name)
	if len(positions) == 0 {
		return 0, &Error{Kind: KindUnknown, Ref: ref, Message: fmt.Sprintf("change %q is not in the plan", name)}
	}
	best := -1
	for _, pos := range positions {
		if pos <= limit {
			best = pos
		}
	}
	if best < 0 {
		return 0, &Error{Kind: KindUnknown, Ref: ref, Message: fmt.Sprintf("change %q does not exist as of tag %q", name, tag)}
	}
	return best, nil
}

// resolveName resolves a bare token, which may spell a change name or a tag
// name. Both at once is ambiguous and refused rather than guessed.
func resolveName(p *plan.Plan, ref, name string) (int, error) {
	positions := p.Positions(name)
	tagPos := p.TagPosition(name)
	switch {
	case len(positions) > 0 && tagPos >= 0:
		return 0, &Error{Kind: KindAmbiguous, Ref: ref, Message: fmt.Sprintf("%q names both a change and a tag; use @%s for the tag", name, name)}
	case len(positions) > 0:
		return positions[len(positions)-1], nil
	case tagPos >= 0:
		return tagPos, nil
	default:
		return 0, &Error{Kind: KindUnknown, Ref: ref, Message: fmt.Sprintf("%q is neither a change nor a tag in the plan", name)}
	}
}
