package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int // fail this many calls before succeeding
	calls    int
	records  []Record
}

func (s *fakeStore) LogRecord(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) snapshot() ([]Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), s.calls
}

func TestAuditWriterDrainsOnFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{}
	w := NewAuditWriter(store, 16)
	w.Start()

	for i := 1; i <= 5; i++ {
		w.Log(&Record{RunID: "run-1", Position: i, File: "f.ifc", Outcome: "0"})
	}
	w.Flush(5 * time.Second)

	records, _ := store.snapshot()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Position)
	}
}

func TestAuditWriterRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{failures: 2}
	w := NewAuditWriter(store, 4)
	w.backoff = time.Millisecond
	w.Start()

	w.Log(&Record{RunID: "run-1", Position: 1, File: "a.ifc", Outcome: "TIMED OUT"})
	w.Flush(5 * time.Second)

	records, calls := store.snapshot()
	assert.Len(t, records, 1)
	assert.Equal(t, 3, calls)
}

func TestAuditWriterGivesUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{failures: 100}
	w := NewAuditWriter(store, 4)
	w.backoff = time.Millisecond
	w.Start()

	w.Log(&Record{RunID: "run-1", Position: 1, File: "a.ifc", Outcome: "0"})
	w.Flush(5 * time.Second)

	records, calls := store.snapshot()
	assert.Empty(t, records)
	assert.Equal(t, 4, calls)
}

func TestAuditWriterDropsWhenFull(t *testing.T) {
	store := &fakeStore{}
	w := NewAuditWriter(store, 1)

	// Not started: the first record fills the buffer, the second is dropped.
	w.Log(&Record{Position: 1})
	w.Log(&Record{Position: 2})
	assert.Len(t, w.queue, 1)
	assert.EqualValues(t, 1, w.Dropped())

	w.Start()
	w.Flush(5 * time.Second)
	records, _ := store.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Position)
}
