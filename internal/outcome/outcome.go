// Package outcome models the value recorded in the "Exit Code" column of a
// result file: either an integer exit code from the import tool or one of
// the sentinels NOT RAN, DUPLICATE and TIMED OUT.
package outcome

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel strings as they appear in result files.
const (
	NotRanText    = "NOT RAN"
	DuplicateText = "DUPLICATE"
	TimedOutText  = "TIMED OUT"
)

// ErrInvalidOutcome is returned when a field is neither an integer nor a sentinel.
var ErrInvalidOutcome = errors.New("invalid outcome")

// Kind distinguishes integer outcomes from the sentinels.
type Kind int

const (
	KindCode Kind = iota
	KindNotRan
	KindDuplicate
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindNotRan:
		return "not_ran"
	case KindDuplicate:
		return "duplicate"
	case KindTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is an immutable result value. The zero value is exit code 0.
type Outcome struct {
	kind Kind
	code int
}

var (
	NotRan    = Outcome{kind: KindNotRan}
	Duplicate = Outcome{kind: KindDuplicate}
	TimedOut  = Outcome{kind: KindTimedOut}
)

// Code returns an integer outcome.
func Code(code int) Outcome {
	return Outcome{kind: KindCode, code: code}
}

func (o Outcome) Kind() Kind { return o.kind }

// ExitCode returns the integer code and whether the outcome carries one.
func (o Outcome) ExitCode() (int, bool) {
	if o.kind != KindCode {
		return 0, false
	}
	return o.code, true
}

func (o Outcome) String() string {
	switch o.kind {
	case KindNotRan:
		return NotRanText
	case KindDuplicate:
		return DuplicateText
	case KindTimedOut:
		return TimedOutText
	default:
		return strconv.Itoa(o.code)
	}
}

// Parse reads an outcome from its result-file representation.
func Parse(field string) (Outcome, error) {
	s := strings.TrimSpace(field)
	switch s {
	case NotRanText:
		return NotRan, nil
	case DuplicateText:
		return Duplicate, nil
	case TimedOutText:
		return TimedOut, nil
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, field)
	}
	return Code(code), nil
}
