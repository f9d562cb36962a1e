// Package results defines the run record schema and the comma-separated
// result file shared by the runner, the classifier and the sorter.
package results

import (
	"time"

	"bouncer-harness/internal/outcome"
)

// Column headers.
const (
	ColFile     = "File"
	ColExitCode = "Exit Code"
	ColElapsed  = "Time taken(s)"
	ColLogDir   = "Log location"
)

// RunRecord is one row of a result file.
type RunRecord struct {
	Position   int // 1-based discovery index; not persisted
	File       string
	Outcome    outcome.Outcome
	Elapsed    time.Duration
	HasElapsed bool
	LogDir     string
}

// Header returns the column headers for a table with or without elapsed time.
func Header(withElapsed bool) []string {
	if withElapsed {
		return []string{ColFile, ColExitCode, ColElapsed, ColLogDir}
	}
	return []string{ColFile, ColExitCode, ColLogDir}
}
