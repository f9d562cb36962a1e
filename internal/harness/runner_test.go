package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bouncer-harness/internal/corpus"
	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/results"
	"bouncer-harness/internal/storage"
	"bouncer-harness/internal/tool"
)

// behaviour scripts how fakeInvoker answers for one file name.
type behaviour struct {
	status   int
	logLine  string
	noLog    bool
	timeout  bool
	startErr error
}

type fakeInvoker struct {
	mu         sync.Mutex
	behaviours map[string]behaviour
	delay      time.Duration
	calls      []tool.Request
	active     int
	maxActive  int
}

func (f *fakeInvoker) Invoke(ctx context.Context, req tool.Request) (*tool.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	b := f.behaviours[filepath.Base(req.File)]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &tool.InvocationError{File: req.File, Op: "wait", Err: ctx.Err()}
		}
	}

	if b.startErr != nil {
		return nil, &tool.InvocationError{File: req.File, Op: "start", Err: b.startErr}
	}
	if !b.noLog {
		content := "loading " + req.File + "\n" + b.logLine + "\n"
		if err := os.WriteFile(filepath.Join(req.LogDir, "bouncer.log"), []byte(content), 0o600); err != nil {
			return nil, err
		}
	}
	if b.timeout {
		return &tool.Result{ExitCode: -1, Duration: req.Timeout}, tool.ErrTimeout
	}
	return &tool.Result{ExitCode: b.status, Duration: 25 * time.Millisecond}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []*storage.Record
}

func (a *fakeAuditor) Log(rec *storage.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

func marker(code int) string {
	return fmt.Sprintf("[INFO] Process completed, returning with error code: %d", code)
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func newTestRunner(inv tool.Invoker, logRoot string, workers int, auditor Auditor) *Runner {
	cfg := RunnerConfig{
		RunID:         "run-test",
		Timeout:       time.Second,
		Workers:       workers,
		LogRoot:       logRoot,
		Fingerprinter: corpus.NewFingerprinter(64, 2),
	}
	return NewRunner(inv, cfg, monitor.NewMetrics(), auditor)
}

func TestRunOutcomes(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"a.ifc":       "shared content",
		"b.ifc":       "shared content",
		"c.ifc":       "plain pass",
		"d.ifc":       "status says 1, log says 7",
		"e.ifc":       "no log at all",
		"f.ifc":       "hangs",
		"g.ifc":       "cannot start",
		"h.ifc":       "no marker in log",
		"readme.txt":  "ignored",
		"sub/i.ifc":   "nested failure",
		"sub/j.other": "ignored",
	})
	inv := &fakeInvoker{behaviours: map[string]behaviour{
		"a.ifc": {status: 0, logLine: marker(0)},
		"c.ifc": {status: 0, logLine: marker(0)},
		"d.ifc": {status: 1, logLine: marker(7)},
		"e.ifc": {status: 0, noLog: true},
		"f.ifc": {timeout: true},
		"g.ifc": {startErr: tool.ErrToolNotFound},
		"h.ifc": {status: 4, logLine: "segfault somewhere"},
		"i.ifc": {status: 0, logLine: marker(12)},
	}}
	logRoot := filepath.Join(t.TempDir(), "logs")
	output := filepath.Join(t.TempDir(), "results.csv")

	report, err := newTestRunner(inv, logRoot, 1, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: output})
	require.NoError(t, err)

	want := []struct {
		name    string
		outcome outcome.Outcome
		elapsed bool
		logDir  bool
	}{
		{"a.ifc", outcome.Code(0), true, true},
		{"b.ifc", outcome.Duplicate, false, false},
		{"c.ifc", outcome.Code(0), true, true},
		{"d.ifc", outcome.Code(7), true, true},
		{"e.ifc", outcome.NotRan, true, true},
		{"f.ifc", outcome.TimedOut, true, true},
		{"g.ifc", outcome.NotRan, false, true},
		{"h.ifc", outcome.Code(4), true, true},
		{"i.ifc", outcome.Code(12), true, true},
	}
	require.Len(t, report.Records, len(want))
	for i, w := range want {
		rec := report.Records[i]
		assert.Equal(t, i+1, rec.Position)
		assert.Equal(t, w.name, filepath.Base(rec.File), "record %d", i)
		assert.Equal(t, w.outcome, rec.Outcome, "record %s", w.name)
		assert.Equal(t, w.elapsed, rec.HasElapsed, "elapsed for %s", w.name)
		if w.logDir {
			assert.Equal(t, filepath.Join(logRoot, fmt.Sprint(i+1)), rec.LogDir)
			assert.DirExists(t, rec.LogDir)
		} else {
			assert.Empty(t, rec.LogDir)
		}
	}
	assert.NoDirExists(t, filepath.Join(logRoot, "2"), "duplicates get no log directory")
	assert.Equal(t, 8, inv.callCount())

	assert.Equal(t, BatchStats{
		Total: 9, Passed: 3, Failed: 2, TimedOut: 1, Duplicates: 1, NotRan: 2,
		Codes: map[int]int{0: 2, 7: 1, 4: 1, 12: 1},
	}, report.Stats)

	written, err := results.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, written, len(want))
	for i := range written {
		assert.Equal(t, report.Records[i].File, written[i].File)
		assert.Equal(t, report.Records[i].Outcome, written[i].Outcome)
		assert.Equal(t, report.Records[i].LogDir, written[i].LogDir)
	}

	header, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(header), "File,Exit Code,Time taken(s),Log location\n")
}

func TestRunPassesTimeoutAndLogDirPerFile(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.rvt": "1", "b.rvt": "2"})
	inv := &fakeInvoker{behaviours: map[string]behaviour{}}
	logRoot := t.TempDir()

	_, err := newTestRunner(inv, logRoot, 1, nil).Run(context.Background(), RunOptions{Extension: "rvt", Root: root, Output: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)

	require.Len(t, inv.calls, 2)
	for i, call := range inv.calls {
		assert.Equal(t, time.Second, call.Timeout)
		assert.Equal(t, filepath.Join(logRoot, fmt.Sprint(i+1)), call.LogDir)
	}
}

func TestRunParallelPreservesDiscoveryOrder(t *testing.T) {
	files := make(map[string]string)
	behaviours := make(map[string]behaviour)
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("model_%02d.ifc", i)
		files[name] = fmt.Sprintf("content %d", i)
		behaviours[name] = behaviour{status: i % 3, logLine: marker(i)}
	}
	// Same content as model_03, discovered later.
	files["model_99.ifc"] = "content 3"

	root := writeCorpus(t, files)
	inv := &fakeInvoker{behaviours: behaviours, delay: 30 * time.Millisecond}
	logRoot := t.TempDir()

	report, err := newTestRunner(inv, logRoot, 4, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)

	require.Len(t, report.Records, 13)
	for i := 0; i < 12; i++ {
		rec := report.Records[i]
		assert.Equal(t, fmt.Sprintf("model_%02d.ifc", i), filepath.Base(rec.File))
		assert.Equal(t, outcome.Code(i), rec.Outcome)
		assert.Equal(t, filepath.Join(logRoot, fmt.Sprint(i+1)), rec.LogDir)
	}
	assert.Equal(t, outcome.Duplicate, report.Records[12].Outcome)

	assert.Equal(t, 12, inv.callCount())
	assert.LessOrEqual(t, inv.maxActive, 4)
	assert.Greater(t, inv.maxActive, 1)
}

func TestRunCancelledRecordsNotRan(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.ifc": "1", "b.ifc": "2"})
	inv := &fakeInvoker{behaviours: map[string]behaviour{}}
	output := filepath.Join(t.TempDir(), "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestRunner(inv, t.TempDir(), 1, nil).Run(ctx, RunOptions{Extension: "ifc", Root: root, Output: output})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	require.Len(t, report.Records, 2)
	for _, rec := range report.Records {
		assert.Equal(t, outcome.NotRan, rec.Outcome)
	}
	assert.Zero(t, inv.callCount())
	assert.FileExists(t, output)
}

func TestRunAuditsEveryRecord(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.ifc": "same", "b.ifc": "same", "c.ifc": "other"})
	inv := &fakeInvoker{behaviours: map[string]behaviour{
		"a.ifc": {logLine: marker(10)},
		"c.ifc": {timeout: true},
	}}
	auditor := &fakeAuditor{}

	_, err := newTestRunner(inv, t.TempDir(), 1, auditor).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)

	require.Len(t, auditor.records, 3)
	sort.Slice(auditor.records, func(i, j int) bool {
		return auditor.records[i].Position < auditor.records[j].Position
	})
	a, b, c := auditor.records[0], auditor.records[1], auditor.records[2]

	assert.Equal(t, "run-test", a.RunID)
	require.NotNil(t, a.ExitCode)
	assert.Equal(t, 10, *a.ExitCode)
	assert.NotNil(t, a.ElapsedMS)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.Fingerprint, 32)

	assert.Equal(t, "DUPLICATE", b.Outcome)
	assert.Nil(t, b.ExitCode)
	assert.Nil(t, b.ElapsedMS)

	assert.Equal(t, "TIMED OUT", c.Outcome)
	assert.Equal(t, 3, c.Position)
}

func TestRunExcludes(t *testing.T) {
	root := writeCorpus(t, map[string]string{"keep/a.ifc": "1", "Passed/b.ifc": "2", "Failed/c.ifc": "3"})
	inv := &fakeInvoker{behaviours: map[string]behaviour{}}
	r := NewRunner(inv, RunnerConfig{
		LogRoot:  t.TempDir(),
		Excludes: []string{"{Passed,Failed,Timedout}/**"},
	}, nil, nil)

	report, err := r.Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "a.ifc", filepath.Base(report.Records[0].File))
	assert.NotEmpty(t, report.RunID)
}

func TestRunDiscoveryError(t *testing.T) {
	inv := &fakeInvoker{}
	_, err := newTestRunner(inv, t.TempDir(), 1, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: filepath.Join(t.TempDir(), "missing"), Output: "out.csv"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestDefaultLogRoot(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "log_03-05-2024-14_07_09_3f2a9c1e", DefaultLogRoot(ts, "3f2a9c1e-7b4d-4c36-9a51-0d2f6e8b1c4a"))
	assert.Equal(t, "log_03-05-2024-14_07_09_run", DefaultLogRoot(ts, "run"))
	assert.Equal(t, "log_03-05-2024-14_07_09", DefaultLogRoot(ts, ""))
	assert.NotEqual(t, DefaultLogRoot(ts, "aaaaaaaa-1"), DefaultLogRoot(ts, "bbbbbbbb-1"))
}

// A reused log root would let the first batch's markers decide the second
// batch's outcomes, so the second batch is refused.
func TestRunRefusesUsedLogRoot(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.ifc": "model"})
	logRoot := t.TempDir()
	output := filepath.Join(t.TempDir(), "out.csv")

	first := &fakeInvoker{behaviours: map[string]behaviour{"a.ifc": {logLine: marker(0)}}}
	report, err := newTestRunner(first, logRoot, 1, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: output})
	require.NoError(t, err)
	require.Equal(t, outcome.Code(0), report.Records[0].Outcome)

	second := &fakeInvoker{behaviours: map[string]behaviour{"a.ifc": {status: 5, noLog: true}}}
	_, err = newTestRunner(second, logRoot, 1, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: output})
	require.ErrorIs(t, err, ErrLogRootInUse)
	assert.Zero(t, second.callCount())
}

func TestRunAcceptsLogRootWithoutNumberedEntries(t *testing.T) {
	root := writeCorpus(t, map[string]string{"a.ifc": "model"})
	logRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logRoot, "notes.txt"), []byte("x"), 0o600))

	inv := &fakeInvoker{behaviours: map[string]behaviour{"a.ifc": {logLine: marker(7)}}}
	report, err := newTestRunner(inv, logRoot, 1, nil).Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)
	assert.Equal(t, outcome.Code(7), report.Records[0].Outcome)
}

// A log directory that appears between the root check and the invocation
// still holds someone else's log: the file is NOT RAN and the tool is skipped.
func TestProcessRequiresFreshLogDir(t *testing.T) {
	file := filepath.Join(writeCorpus(t, map[string]string{"a.ifc": "model"}), "a.ifc")
	logRoot := t.TempDir()
	writeLog(t, filepath.Join(logRoot, "1"), "old run\n"+marker(0)+"\n")

	inv := &fakeInvoker{behaviours: map[string]behaviour{"a.ifc": {status: 5, noLog: true}}}
	r := newTestRunner(inv, logRoot, 1, nil)

	rec := r.process(context.Background(), results.RunRecord{Position: 1, File: file, Outcome: outcome.NotRan}, logRoot)
	assert.Equal(t, outcome.NotRan, rec.Outcome)
	assert.False(t, rec.HasElapsed)
	assert.Zero(t, inv.callCount())
}
