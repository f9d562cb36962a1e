package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"bouncer-harness/internal/bouncerlog"
	"bouncer-harness/internal/corpus"
	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/results"
)

// ClassifyOptions are the positional arguments of a classification pass.
type ClassifyOptions struct {
	Extension string
	Root      string
	LogRoot   string
	Output    string
}

// Classifier rebuilds a result table from the log directories of an
// earlier run without invoking the tool.
type Classifier struct {
	excludes   []string
	classifier *outcome.Classifier
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
}

func NewClassifier(excludes []string, passCodes []int, metrics *monitor.Metrics) *Classifier {
	if metrics == nil {
		metrics = monitor.NewMetrics()
	}
	return &Classifier{
		excludes:   excludes,
		classifier: outcome.NewClassifier(passCodes),
		metrics:    metrics,
		tracer:     monitor.NewTracer(),
	}
}

// Classify enumerates the corpus exactly as the runner does and reads the
// log directory at the same position for each file.
func (c *Classifier) Classify(ctx context.Context, opts ClassifyOptions) (*Report, error) {
	ctx, span := c.tracer.StartSpan(ctx, "classify", monitor.AttrFile.String(opts.Root))
	defer span.End()

	files, err := corpus.Discover(opts.Root, opts.Extension, c.excludes)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	c.metrics.FilesDiscovered.Set(float64(len(files)))

	records := make([]results.RunRecord, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := i + 1
		dir := filepath.Join(opts.LogRoot, strconv.Itoa(pos))

		o, err := bouncerlog.Recover(dir)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Str("log_dir", dir).Msg("log directory unreadable")
			c.metrics.RecordError("log_read")
		}
		records = append(records, results.RunRecord{Position: pos, File: file, Outcome: o, LogDir: dir})
		c.metrics.RecordOutcome(o.Kind().String(), class(c.classifier, o))

		log.Debug().Int("position", pos).Str("file", file).Str("outcome", o.String()).Msg("classified")
	}

	if err := results.WriteFile(opts.Output, records, false); err != nil {
		return nil, fmt.Errorf("writing results: %w", err)
	}

	stats := Collect(c.classifier, records)
	stats.Log(log.Logger)
	return &Report{LogRoot: opts.LogRoot, Records: records, Stats: stats}, nil
}
