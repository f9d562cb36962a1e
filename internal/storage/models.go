package storage

import "time"

// Run is one harness batch.
type Run struct {
	ID          string     `json:"id" db:"id"`
	Command     string     `json:"command" db:"command"` // run, classify
	Extension   string     `json:"extension" db:"extension"`
	Root        string     `json:"root" db:"root"`
	Output      string     `json:"output" db:"output"`
	Total       int        `json:"total" db:"total"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Record mirrors one result-file row, plus what the file does not keep.
type Record struct {
	RunID       string    `json:"run_id" db:"run_id"`
	Position    int       `json:"position" db:"position"`
	File        string    `json:"file" db:"file"`
	Outcome     string    `json:"outcome" db:"outcome"`     // exit code or sentinel text
	ExitCode    *int      `json:"exit_code" db:"exit_code"` // nil for sentinels
	ElapsedMS   *int64    `json:"elapsed_ms,omitempty" db:"elapsed_ms"`
	LogDir      string    `json:"log_dir" db:"log_dir"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
