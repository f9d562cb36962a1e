//go:build !windows

package harness

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bouncer-harness/internal/outcome"
	"bouncer-harness/internal/tool"
)

// fakeBouncer logs success for every file except those named slow*, which
// hang. The process status is deliberately wrong so the log has to win.
const fakeBouncer = `#!/bin/sh
case "$(basename "$2")" in
  slow*)
    echo $$ > "$REPO_LOG_DIR/pid"
    exec sleep 30
    ;;
esac
echo "importing $2" > "$REPO_LOG_DIR/import.log"
echo "[info] Process completed, returning with error code: 0" >> "$REPO_LOG_DIR/import.log"
exit 3
`

func shellInvoker(t *testing.T) *tool.Runner {
	t.Helper()
	path := filepath.Join(t.TempDir(), "3drepobouncerTool")
	require.NoError(t, os.WriteFile(path, []byte(fakeBouncer), 0o755))
	return tool.NewRunner(tool.Options{Path: path, Subcommand: "testImport"})
}

func runThenSort(t *testing.T, root string, timeout time.Duration) *Report {
	t.Helper()
	logRoot := filepath.Join(t.TempDir(), "logs")
	output := filepath.Join(t.TempDir(), "results.csv")

	r := NewRunner(shellInvoker(t), RunnerConfig{Timeout: timeout, Workers: 2, LogRoot: logRoot}, nil, nil)
	report, err := r.Run(context.Background(), RunOptions{Extension: "ifc", Root: root, Output: output})
	require.NoError(t, err)

	_, err = NewSorter(nil, false, nil).Sort(context.Background(), output)
	require.NoError(t, err)
	return report
}

func TestEndToEndDuplicates(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"A.ifc": strings.Repeat("same model ", 100),
		"B.ifc": strings.Repeat("same model ", 100),
		"C.ifc": "a different model",
	})

	report := runThenSort(t, root, 10*time.Second)

	require.Len(t, report.Records, 3)
	assert.Equal(t, outcome.Code(0), report.Records[0].Outcome)
	assert.Equal(t, outcome.Duplicate, report.Records[1].Outcome)
	assert.Equal(t, outcome.Code(0), report.Records[2].Outcome)

	assert.FileExists(t, filepath.Join(root, "Passed", "A.ifc"))
	assert.FileExists(t, filepath.Join(root, "Passed", "C.ifc"))
	assert.FileExists(t, filepath.Join(root, "B.ifc"))
}

func TestEndToEndTimeout(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"fast.ifc": "quick",
		"slow.ifc": "hangs forever",
	})

	start := time.Now()
	report := runThenSort(t, root, 300*time.Millisecond)
	assert.Less(t, time.Since(start), 10*time.Second)

	require.Len(t, report.Records, 2)
	assert.Equal(t, outcome.Code(0), report.Records[0].Outcome)
	slow := report.Records[1]
	assert.Equal(t, outcome.TimedOut, slow.Outcome)
	assert.True(t, slow.HasElapsed)

	assert.FileExists(t, filepath.Join(root, "Passed", "fast.ifc"))
	assert.FileExists(t, filepath.Join(root, "Timedout", "slow.ifc"))

	raw, err := os.ReadFile(filepath.Join(slow.LogDir, "pid"))
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "timed out tool must not survive the batch")
}
