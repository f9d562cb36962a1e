package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"bouncer-harness/internal/bouncerlog"
	"bouncer-harness/internal/corpus"
	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/results"
	"bouncer-harness/internal/storage"
	"bouncer-harness/internal/tool"
)

// Auditor receives each record once its outcome is final. Log may be called
// from several goroutines.
type Auditor interface {
	Log(rec *storage.Record)
}

// RunnerConfig holds the knobs of a Runner.
type RunnerConfig struct {
	RunID         string // generated when empty
	Timeout       time.Duration
	Workers       int
	LogRoot       string // log_<timestamp> when empty
	Excludes      []string
	PassCodes     []int
	Fingerprinter *corpus.Fingerprinter
}

// RunOptions are the positional arguments of a run.
type RunOptions struct {
	Extension string
	Root      string
	Output    string
}

// Report describes a finished batch.
type Report struct {
	RunID   string
	LogRoot string
	Records []results.RunRecord
	Stats   BatchStats
}

// Runner drives the import tool over a corpus and writes the result table.
type Runner struct {
	invoker    tool.Invoker
	cfg        RunnerConfig
	classifier *outcome.Classifier
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	auditor    Auditor
}

// NewRunner creates a Runner. metrics and auditor may be nil.
func NewRunner(invoker tool.Invoker, cfg RunnerConfig, metrics *monitor.Metrics, auditor Auditor) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Fingerprinter == nil {
		cfg.Fingerprinter = corpus.NewFingerprinter(0, 0)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if metrics == nil {
		metrics = monitor.NewMetrics()
	}
	return &Runner{
		invoker:    invoker,
		cfg:        cfg,
		classifier: outcome.NewClassifier(cfg.PassCodes),
		metrics:    metrics,
		tracer:     monitor.NewTracer(),
		auditor:    auditor,
	}
}

// ErrLogRootInUse is returned when the log root already holds per-file log
// directories from an earlier batch.
var ErrLogRootInUse = errors.New("log root already holds numbered log directories")

// DefaultLogRoot names a log root after the current time, in the working
// directory. The run ID suffix keeps two batches started in the same second apart.
func DefaultLogRoot(now time.Time, runID string) string {
	root := "log_" + now.Format("01-02-2006-15_04_05")
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID == "" {
		return root
	}
	return root + "_" + runID
}

// prepareLogRoot creates root and refuses one that already has numbered
// entries, whose logs would be read back as this batch's results.
func prepareLogRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating log root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("reading log root: %w", err)
	}
	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err == nil {
			return fmt.Errorf("%w: %s contains %s", ErrLogRootInUse, root, e.Name())
		}
	}
	return nil
}

// Run processes every discovered file and writes opts.Output. When ctx is
// cancelled, files not yet processed are recorded as NOT RAN, the partial
// table is still written, and ctx's error is returned.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	start := time.Now()
	logger := log.With().Str("run_id", r.cfg.RunID).Logger()

	ctx, span := r.tracer.StartSpan(ctx, "run",
		monitor.AttrRunID.String(r.cfg.RunID),
		monitor.AttrFile.String(opts.Root),
	)
	defer span.End()

	files, err := corpus.Discover(opts.Root, opts.Extension, r.cfg.Excludes)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	r.metrics.FilesDiscovered.Set(float64(len(files)))

	logRoot := r.cfg.LogRoot
	if logRoot == "" {
		logRoot = DefaultLogRoot(start, r.cfg.RunID)
	}
	if err := prepareLogRoot(logRoot); err != nil {
		return nil, err
	}

	logger.Info().
		Int("files", len(files)).
		Str("extension", opts.Extension).
		Str("root", opts.Root).
		Str("log_root", logRoot).
		Int("workers", r.cfg.Workers).
		Msg("starting batch")

	records := make([]results.RunRecord, len(files))
	seen := make(map[string]bool, len(files))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	// Dedup is decided here in discovery order, before dispatch, so the first
	// occurrence of a fingerprint wins regardless of worker count.
	// Every record is audited exactly once.
	for i, file := range files {
		records[i] = results.RunRecord{Position: i + 1, File: file, Outcome: outcome.NotRan}
		if ctx.Err() != nil {
			r.audit(records[i], "")
			continue
		}
		logger.Info().Msgf("[%d/%d] %s", i+1, len(files), file)

		fp, err := r.cfg.Fingerprinter.File(file)
		if err != nil {
			logger.Error().Err(err).Str("file", file).Msg("fingerprinting failed")
			r.metrics.RecordError("fingerprint")
			r.audit(records[i], "")
			continue
		}
		if seen[fp] {
			logger.Info().Msg("\t duplicated file, skipping...")
			records[i].Outcome = outcome.Duplicate
			r.audit(records[i], fp)
			continue
		}
		seen[fp] = true

		i := i
		g.Go(func() error {
			records[i] = r.process(ctx, records[i], logRoot)
			r.audit(records[i], fp)
			return nil
		})
	}
	_ = g.Wait()

	if err := results.WriteFile(opts.Output, records, true); err != nil {
		return nil, fmt.Errorf("writing results: %w", err)
	}

	stats := Collect(r.classifier, records)
	for _, rec := range records {
		r.metrics.RecordOutcome(rec.Outcome.Kind().String(), class(r.classifier, rec.Outcome))
	}
	r.metrics.BatchDuration.Set(time.Since(start).Seconds())

	stats.Log(logger)
	logger.Info().
		Str("output", opts.Output).
		Dur("duration", time.Since(start)).
		Msg("batch complete")

	report := &Report{RunID: r.cfg.RunID, LogRoot: logRoot, Records: records, Stats: stats}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	return report, nil
}

// process invokes the tool for one unique file and derives its record.
func (r *Runner) process(ctx context.Context, rec results.RunRecord, logRoot string) results.RunRecord {
	logger := log.With().
		Str("run_id", r.cfg.RunID).
		Int("position", rec.Position).
		Str("file", rec.File).
		Logger()

	ctx, span := r.tracer.StartSpan(ctx, "invoke",
		monitor.AttrFile.String(rec.File),
		monitor.AttrPosition.Int(rec.Position),
	)
	defer span.End()

	if info, err := os.Stat(rec.File); err == nil {
		r.metrics.InputSizeBytes.Observe(float64(info.Size()))
	}

	// The directory must be new: a stale log inside would decide the outcome.
	rec.LogDir = filepath.Join(logRoot, strconv.Itoa(rec.Position))
	if err := os.Mkdir(rec.LogDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("creating fresh log directory failed")
		r.metrics.RecordError("log_dir")
		rec.Outcome = outcome.NotRan
		return rec
	}

	r.metrics.ActiveInvocations.Inc()
	res, err := r.invoker.Invoke(ctx, tool.Request{File: rec.File, LogDir: rec.LogDir, Timeout: r.cfg.Timeout})
	r.metrics.ActiveInvocations.Dec()

	switch {
	case errors.Is(err, tool.ErrTimeout):
		rec.Outcome = outcome.TimedOut
		rec.Elapsed, rec.HasElapsed = res.Duration, true
		r.metrics.RecordInvocation(res.Duration.Seconds())
		logger.Warn().Dur("elapsed", res.Duration).Msg("import timed out")
	case err != nil:
		rec.Outcome = outcome.NotRan
		r.metrics.RecordError(errorType(err))
		logger.Error().Err(err).Msg("import tool could not be run")
	default:
		rec.Elapsed, rec.HasElapsed = res.Duration, true
		r.metrics.RecordInvocation(res.Duration.Seconds())
		o, rerr := bouncerlog.Resolve(res.ExitCode, rec.LogDir)
		if rerr != nil {
			logger.Error().Err(rerr).Msg("reading tool log failed")
			r.metrics.RecordError("log_read")
		}
		if rerr == nil && o.Kind() == outcome.KindNotRan {
			logger.Warn().Str("log_dir", rec.LogDir).Msg("tool produced no log file")
		}
		rec.Outcome = o
		span.SetAttributes(monitor.AttrExitStatus.Int(res.ExitCode))
		logger.Info().
			Int("exit_status", res.ExitCode).
			Str("outcome", outcome.Describe(o)).
			Dur("elapsed", res.Duration).
			Msg("import finished")
	}

	span.SetAttributes(
		monitor.AttrOutcome.String(rec.Outcome.String()),
		monitor.AttrDurationMS.Int64(rec.Elapsed.Milliseconds()),
	)
	return rec
}

// audit hands a final record to the auditor as soon as it is known, so the
// audit buffer drains while the batch is still running.
func (r *Runner) audit(rec results.RunRecord, fingerprint string) {
	if r.auditor != nil {
		r.auditor.Log(toStorageRecord(r.cfg.RunID, rec, fingerprint, time.Now()))
	}
}

// AuditRecords hands every record to a, stamped with runID.
func AuditRecords(a Auditor, runID string, records []results.RunRecord) {
	if a == nil {
		return
	}
	now := time.Now()
	for _, rec := range records {
		a.Log(toStorageRecord(runID, rec, "", now))
	}
}

func toStorageRecord(runID string, rec results.RunRecord, fingerprint string, now time.Time) *storage.Record {
	out := &storage.Record{
		RunID:       runID,
		Position:    rec.Position,
		File:        rec.File,
		Outcome:     rec.Outcome.String(),
		LogDir:      rec.LogDir,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}
	if code, ok := rec.Outcome.ExitCode(); ok {
		out.ExitCode = &code
	}
	if rec.HasElapsed {
		ms := rec.Elapsed.Milliseconds()
		out.ElapsedMS = &ms
	}
	return out
}

func errorType(err error) string {
	var invErr *tool.InvocationError
	if errors.As(err, &invErr) {
		return invErr.Op
	}
	return "unknown"
}
