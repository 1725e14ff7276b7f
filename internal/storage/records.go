package storage

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/piecefinder/internal/telemetry"
)

const (
	recordQueue     = 1024
	recordBatch     = 200
	recordFlushWait = time.Second
)

// RecordSink is a telemetry.Sink that appends published records to the run
// log. Publish never waits on the database: records are queued and written
// in batches by a background goroutine, and dropped if the queue is full.
type RecordSink struct {
	db              *DB
	runID           string
	includeDefaults bool

	queue   chan telemetry.Record
	dropped atomic.Uint64
	written atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ telemetry.Sink = (*RecordSink)(nil)

// NewRecordSink starts the writer for runID. Neutral default records are
// only stored when includeDefaults is set.
func (db *DB) NewRecordSink(runID string, includeDefaults bool) *RecordSink {
	s := &RecordSink{
		db:              db,
		runID:           runID,
		includeDefaults: includeDefaults,
		queue:           make(chan telemetry.Record, recordQueue),
		done:            make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish implements telemetry.Sink.
func (s *RecordSink) Publish(_ context.Context, r telemetry.Record) error {
	if r.Default && !s.includeDefaults {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.queue <- r:
	default:
		if n := s.dropped.Add(1); n%100 == 1 {
			logs.Opsf("run log queue full, %d records dropped", n)
		}
	}
	return nil
}

// Close flushes queued records and stops the writer.
func (s *RecordSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// Written returns how many records reached the database.
func (s *RecordSink) Written() uint64 { return s.written.Load() }

// Dropped returns how many records were discarded because the queue was full.
func (s *RecordSink) Dropped() uint64 { return s.dropped.Load() }

func (s *RecordSink) run() {
	defer close(s.done)
	timer := time.NewTimer(recordFlushWait)
	defer timer.Stop()

	batch := make([]telemetry.Record, 0, recordBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insert(batch); err != nil {
			logs.Opsf("failed to write %d run log records: %v", len(batch), err)
		} else {
			s.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= recordBatch {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(recordFlushWait)
		}
	}
}

func (s *RecordSink) insert(batch []telemetry.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO published_records
		(run_id, published_ns, captured_ns, position_x, position_y, yaw, certainty, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		var captured sql.NullInt64
		if !r.CapturedAt.IsZero() {
			captured = sql.NullInt64{Int64: r.CapturedAt.UnixNano(), Valid: true}
		}
		if _, err := stmt.Exec(s.runID, r.Timestamp.UnixNano(), captured, r.X, r.Y, r.Yaw, r.Certainty, r.Default); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RunRecords returns up to limit records of a run, oldest first.
func (db *DB) RunRecords(ctx context.Context, runID string, limit int) ([]telemetry.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT published_ns, captured_ns, position_x, position_y, yaw, certainty, is_default
		FROM published_records WHERE run_id = ? ORDER BY published_ns, record_id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var (
			r         telemetry.Record
			published int64
			captured  sql.NullInt64
		)
		if err := rows.Scan(&published, &captured, &r.X, &r.Y, &r.Yaw, &r.Certainty, &r.Default); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, published).UTC()
		if captured.Valid {
			r.CapturedAt = time.Unix(0, captured.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
