package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/results"
)

var (
	ErrSourceMissing     = errors.New("source file missing")
	ErrDestinationExists = errors.New("destination already exists")
)

// SortError reports the result-file row whose move failed.
type SortError struct {
	Line int // 1-based line in the result file, header included
	File string
	Err  error
}

func (e *SortError) Error() string {
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.File, e.Err)
}

func (e *SortError) Unwrap() error {
	return e.Err
}

// SortReport summarises a sorter pass.
type SortReport struct {
	Moved         map[outcome.Category]int
	Planned       map[outcome.Category]int // dry run only; nothing was renamed
	Skipped       int
	AlreadySorted int
	Stopped       bool // a NOT RAN row ended the pass
	StoppedLine   int
}

// Sorter files tested inputs into Passed, Failed and Timedout directories
// next to the input file.
type Sorter struct {
	classifier *outcome.Classifier
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	dryRun     bool
}

func NewSorter(passCodes []int, dryRun bool, metrics *monitor.Metrics) *Sorter {
	if metrics == nil {
		metrics = monitor.NewMetrics()
	}
	return &Sorter{
		classifier: outcome.NewClassifier(passCodes),
		metrics:    metrics,
		tracer:     monitor.NewTracer(),
		dryRun:     dryRun,
	}
}

// Destination returns where file goes for category.
func Destination(file string, category outcome.Category) string {
	return filepath.Join(filepath.Dir(file), string(category), filepath.Base(file))
}

// Sort applies the result table at csvPath. A NOT RAN row stops the pass
// without error; the first failed move aborts it with a *SortError.
// Missing category directories are created. A row whose file already sits
// at its destination counts as AlreadySorted, so a repeated pass is a no-op.
func (s *Sorter) Sort(ctx context.Context, csvPath string) (*SortReport, error) {
	ctx, span := s.tracer.StartSpan(ctx, "sort", monitor.AttrFile.String(csvPath))
	defer span.End()

	records, err := results.ReadFile(csvPath)
	if err != nil {
		return nil, err
	}

	report := &SortReport{
		Moved:   make(map[outcome.Category]int),
		Planned: make(map[outcome.Category]int),
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		line := rec.Position + 1

		action, category := s.classifier.Classify(rec.Outcome)
		switch action {
		case outcome.ActionStop:
			log.Warn().Int("line", line).Str("file", rec.File).Msg("NOT RAN entry, batch did not complete; stopping")
			report.Stopped = true
			report.StoppedLine = line
			return report, nil
		case outcome.ActionSkip:
			report.Skipped++
			continue
		}

		_, moveSpan := s.tracer.StartSpan(ctx, "move",
			monitor.AttrFile.String(rec.File),
			monitor.AttrCategory.String(string(category)),
		)
		already, err := s.move(rec.File, category)
		moveSpan.End()
		if err != nil {
			return report, &SortError{Line: line, File: rec.File, Err: err}
		}
		if already {
			report.AlreadySorted++
			continue
		}
		if s.dryRun {
			report.Planned[category]++
			continue
		}
		report.Moved[category]++
		s.metrics.RecordMove(string(category))
	}

	log.Info().
		Int("passed", report.Moved[outcome.Passed]).
		Int("failed", report.Moved[outcome.Failed]).
		Int("timed_out", report.Moved[outcome.Timedout]).
		Int("skipped", report.Skipped).
		Int("already_sorted", report.AlreadySorted).
		Int("planned", report.Planned[outcome.Passed]+report.Planned[outcome.Failed]+report.Planned[outcome.Timedout]).
		Bool("dry_run", s.dryRun).
		Msg("sort complete")
	return report, nil
}

// move renames file into its category directory. It reports true when the
// file was already there.
func (s *Sorter) move(file string, category outcome.Category) (bool, error) {
	dest := Destination(file, category)

	_, srcErr := os.Lstat(file)
	_, destErr := os.Lstat(dest)
	srcExists := srcErr == nil
	destExists := destErr == nil

	switch {
	case !srcExists && destExists:
		return true, nil
	case !srcExists:
		return false, fmt.Errorf("%w: %v", ErrSourceMissing, srcErr)
	case destExists:
		return false, fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}

	logger := log.With().Str("file", file).Str("dest", dest).Logger()
	if s.dryRun {
		logger.Info().Msg("would move")
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("creating %s directory: %w", category, err)
	}
	if err := os.Rename(file, dest); err != nil {
		return false, fmt.Errorf("moving file: %w", err)
	}
	logger.Debug().Msg("moved")
	return false, nil
}
