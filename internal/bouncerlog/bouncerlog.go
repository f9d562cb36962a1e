// Package bouncerlog reads the per-invocation log directory written by the
// bouncer tool and recovers the exit code it reports in its last line.
package bouncerlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bouncer-harness/internal/outcome"
)

var (
	ErrNoLogFile = errors.New("no log file in log directory")
	ErrNoMarker  = errors.New("no exit code marker in last log line")
)

// markerPattern matches the tool's final log line, e.g.
// "... Process completed, returning with error code: 7".
var markerPattern = regexp.MustCompile(`.+returning with error code: (.*)$`)

// FirstLogFile returns the lexically first regular file in dir. A missing or
// empty directory yields ErrNoLogFile.
func FirstLogFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoLogFile, dir)
		}
		return "", fmt.Errorf("reading log directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoLogFile, dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// LastLine returns the last non-empty line of the file at path.
func LastLine(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var last string
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scanning log file: %w", err)
	}
	return last, nil
}

// ParseMarker extracts the exit code from a final log line. Text after the
// marker that is not an integer counts as no marker.
func ParseMarker(line string) (int, error) {
	m := markerPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, ErrNoMarker
	}
	code, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrNoMarker, m[1])
	}
	return code, nil
}

// Marker is the exit code read from a log directory, if any.
type Marker struct {
	LogFile string
	Code    int
	Found   bool
}

// ReadMarker locates the first log file in dir and parses its last line.
// Only ErrNoLogFile and I/O failures are returned as errors; an absent
// marker is reported through Found.
func ReadMarker(dir string) (Marker, error) {
	logFile, err := FirstLogFile(dir)
	if err != nil {
		return Marker{}, err
	}
	line, err := LastLine(logFile)
	if err != nil {
		return Marker{LogFile: logFile}, err
	}
	code, err := ParseMarker(line)
	if err != nil {
		return Marker{LogFile: logFile}, nil
	}
	return Marker{LogFile: logFile, Code: code, Found: true}, nil
}

// Resolve decides the outcome of a completed invocation from its two
// sources: the process exit status and the log marker. The marker wins when
// present. A log directory without a log file means the tool never really
// ran; an unreadable one is reported as NOT RAN together with the error.
func Resolve(exitStatus int, dir string) (outcome.Outcome, error) {
	m, err := ReadMarker(dir)
	switch {
	case errors.Is(err, ErrNoLogFile):
		return outcome.NotRan, nil
	case err != nil:
		return outcome.NotRan, err
	case m.Found:
		return outcome.Code(m.Code), nil
	default:
		return outcome.Code(exitStatus), nil
	}
}

// Recover derives an outcome from logs alone: NOT RAN without a readable
// log file, the marker code when present, otherwise -1.
func Recover(dir string) (outcome.Outcome, error) {
	m, err := ReadMarker(dir)
	switch {
	case errors.Is(err, ErrNoLogFile):
		return outcome.NotRan, nil
	case err != nil:
		return outcome.NotRan, err
	case m.Found:
		return outcome.Code(m.Code), nil
	default:
		return outcome.Code(-1), nil
	}
}
