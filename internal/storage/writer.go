package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	writeAttempts = 4
	writeTimeout  = 5 * time.Second
)

// RecordStore persists result records. *DB implements it.
type RecordStore interface {
	LogRecord(ctx context.Context, rec *Record) error
}

// AuditWriter streams records to a RecordStore off the hot path so a slow
// database never holds up the next tool invocation. Log never blocks: when
// the queue is full the record is dropped and counted.
type AuditWriter struct {
	store   RecordStore
	queue   chan *Record
	wg      sync.WaitGroup
	done    chan struct{}
	backoff time.Duration
	dropped atomic.Int64
}

func NewAuditWriter(store RecordStore, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &AuditWriter{
		store:   store,
		queue:   make(chan *Record, bufferSize),
		done:    make(chan struct{}),
		backoff: 100 * time.Millisecond,
	}
}

// Start launches the background writer.
func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.run()
}

// Log queues rec for the audit table.
func (w *AuditWriter) Log(rec *Record) {
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
		log.Warn().
			Str("run_id", rec.RunID).
			Int("position", rec.Position).
			Str("file", rec.File).
			Msg("audit queue full, result row not stored")
	}
}

// Dropped reports how many records Log discarded.
func (w *AuditWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Flush stops accepting work and waits up to timeout for queued records.
func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	stopped := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Debug().Int64("dropped", w.Dropped()).Msg("audit trail complete")
	case <-time.After(timeout):
		log.Warn().
			Int("pending", len(w.queue)).
			Dur("timeout", timeout).
			Msg("gave up waiting for audit rows, some results are only in the result file")
	}
}

func (w *AuditWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.queue:
			w.persist(rec)
		case <-w.done:
			for {
				select {
				case rec := <-w.queue:
					w.persist(rec)
				default:
					return
				}
			}
		}
	}
}

// persist writes one record, doubling the pause between attempts.
func (w *AuditWriter) persist(rec *Record) {
	pause := w.backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.LogRecord(ctx, rec)
		cancel()
		if err == nil {
			return
		}

		logger := log.With().
			Str("run_id", rec.RunID).
			Int("position", rec.Position).
			Str("file", rec.File).
			Int("attempt", attempt).
			Logger()
		if attempt == writeAttempts {
			logger.Error().Err(err).Msg("storing result row failed, row kept only in the result file")
			return
		}
		logger.Warn().Err(err).Dur("pause", pause).Msg("storing result row failed, will retry")
		time.Sleep(pause)
		pause *= 2
	}
}
