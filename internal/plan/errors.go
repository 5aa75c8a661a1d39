package plan

import (
	"errors"
	"fmt"
)

// ParseError reports malformed plan syntax. Always fatal: a plan that does
// not parse is never partially usable, so parsing stops at the first error.
type ParseError struct {
	// Line is the 1-based line number the error was detected on.
	Line int

	// OtherLine is a second involved line number, 0 when not applicable.
	// Set for duplicate tag names, where both declarations are cited.
	OtherLine int

	Message string
}

func (e *ParseError) Error() string {
	if e.OtherLine != 0 {
		return fmt.Sprintf("plan line %d: %s (first declared on line %d)", e.Line, e.Message, e.OtherLine)
	}
	if e.Line != 0 {
		return fmt.Sprintf("plan line %d: %s", e.Line, e.Message)
	}
	return "plan: " + e.Message
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
