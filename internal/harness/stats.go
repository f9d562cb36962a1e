package harness

import (
	"sort"

	"github.com/rs/zerolog"

	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/results"
)

// BatchStats tracks aggregate counters across a result table.
type BatchStats struct {
	Total      int
	Passed     int
	Failed     int
	TimedOut   int
	Duplicates int
	NotRan     int
	Codes      map[int]int
}

// class returns the label a record is counted under.
func class(c *outcome.Classifier, o outcome.Outcome) string {
	switch o.Kind() {
	case outcome.KindNotRan:
		return "not_ran"
	case outcome.KindDuplicate:
		return "duplicate"
	case outcome.KindTimedOut:
		return "timedout"
	}
	if c.IsPass(o) {
		return "passed"
	}
	return "failed"
}

// Collect builds stats over records.
func Collect(c *outcome.Classifier, records []results.RunRecord) BatchStats {
	s := BatchStats{Codes: make(map[int]int)}
	for _, rec := range records {
		s.Total++
		switch class(c, rec.Outcome) {
		case "not_ran":
			s.NotRan++
		case "duplicate":
			s.Duplicates++
		case "timedout":
			s.TimedOut++
		case "passed":
			s.Passed++
		default:
			s.Failed++
		}
		if code, ok := rec.Outcome.ExitCode(); ok {
			s.Codes[code]++
		}
	}
	return s
}

// Log writes a summary line and one line per distinct exit code.
func (s BatchStats) Log(logger zerolog.Logger) {
	logger.Info().
		Int("total", s.Total).
		Int("passed", s.Passed).
		Int("failed", s.Failed).
		Int("timed_out", s.TimedOut).
		Int("duplicates", s.Duplicates).
		Int("not_ran", s.NotRan).
		Msg("batch summary")

	codes := make([]int, 0, len(s.Codes))
	for code := range s.Codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		logger.Info().
			Str("code", outcome.Describe(outcome.Code(code))).
			Int("count", s.Codes[code]).
			Msg("exit code breakdown")
	}
}
