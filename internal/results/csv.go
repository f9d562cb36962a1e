package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bouncer-harness/internal/outcome"
)

// ErrMalformedRow is returned for rows that do not fit the table header.
var ErrMalformedRow = errors.New("malformed result row")

// Write emits the header and one row per record, in slice order.
func Write(w io.Writer, records []RunRecord, withElapsed bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(withElapsed)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(row(r, withElapsed)); err != nil {
			return fmt.Errorf("writing row for %s: %w", r.File, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path, replacing any existing file.
func WriteFile(path string, records []RunRecord, withElapsed bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	if err := Write(f, records, withElapsed); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func row(r RunRecord, withElapsed bool) []string {
	if !withElapsed {
		return []string{r.File, r.Outcome.String(), r.LogDir}
	}
	elapsed := ""
	if r.HasElapsed {
		elapsed = strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 3, 64)
	}
	return []string{r.File, r.Outcome.String(), elapsed, r.LogDir}
}

// Read parses a result table. Both the runner shape (with elapsed time) and
// the classifier shape are accepted; the header row decides which.
func Read(r io.Reader) ([]RunRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedRow)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	withElapsed := len(header) == 4 && strings.TrimSpace(header[2]) == ColElapsed
	if !withElapsed && len(header) != 3 {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrMalformedRow, strings.Join(header, ","))
	}

	var records []RunRecord
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}
		rec, err := parseRow(fields, withElapsed)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		rec.Position = len(records) + 1
		records = append(records, rec)
	}
	return records, nil
}

// ReadFile parses the result table at path.
func ReadFile(path string) ([]RunRecord, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseRow(fields []string, withElapsed bool) (RunRecord, error) {
	want := 3
	if withElapsed {
		want = 4
	}
	if len(fields) != want {
		return RunRecord{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRow, len(fields), want)
	}
	if fields[0] == "" {
		return RunRecord{}, fmt.Errorf("%w: empty file path", ErrMalformedRow)
	}

	o, err := outcome.Parse(fields[1])
	if err != nil {
		return RunRecord{}, err
	}

	rec := RunRecord{File: fields[0], Outcome: o, LogDir: fields[want-1]}
	if withElapsed && strings.TrimSpace(fields[2]) != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return RunRecord{}, fmt.Errorf("%w: elapsed %q", ErrMalformedRow, fields[2])
		}
		rec.Elapsed = time.Duration(secs * float64(time.Second))
		rec.HasElapsed = true
	}
	return rec, nil
}
