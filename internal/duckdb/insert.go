package duckdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/loglens/internal/logparse"
	"github.com/tinytelemetry/loglens/internal/model"
)

const (
	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64

	DefaultBatchSize     = 2000
	DefaultFlushInterval = 100 * time.Millisecond
)

// InsertBuffer batches records and flushes them to DuckDB asynchronously.
// Add never blocks on DuckDB writes; records are handed to a flush goroutine.
type InsertBuffer struct {
	writer        model.RecordWriter
	mu            sync.Mutex
	pending       []*model.LogRecord
	flushChan     chan []*model.LogRecord
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup

	flushed atomic.Int64
	failed  atomic.Int64

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64
}

var _ model.RecordSink = (*InsertBuffer)(nil)

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates an insert buffer that flushes to writer.
func NewInsertBuffer(writer model.RecordWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]*model.LogRecord, 0, batchSize),
		flushChan:     make(chan []*model.LogRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds)
// when the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.WithField("inline_flushes", count).Warn("DuckDB mirror falling behind, flushing inline")
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

// enqueue hands batch to the flush worker, or flushes inline when the queue is full.
func (b *InsertBuffer) enqueue(batch []*model.LogRecord) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flushBatch(batch)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flushBatch(batch)
	}
}

// Add queues a record for batch insertion. Records added after Stop are dropped.
func (b *InsertBuffer) Add(record *model.LogRecord) {
	if record == nil {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}

	b.mu.Lock()
	b.pending = append(b.pending, record)
	var batch []*model.LogRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// Stop flushes remaining records and waits for all writes to complete.
// It is safe to call more than once.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop's final drain must land before flushChan closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})
}

// Flushed returns how many records were written successfully.
func (b *InsertBuffer) Flushed() int64 { return b.flushed.Load() }

// Failed returns how many records could not be written.
func (b *InsertBuffer) Failed() int64 { return b.failed.Load() }

func (b *InsertBuffer) flushBatch(batch []*model.LogRecord) {
	if len(batch) == 0 {
		return
	}
	if err := b.writer.InsertRecordBatch(batch); err != nil {
		b.failed.Add(int64(len(batch)))
		log.WithError(err).WithField("records", len(batch)).Error("DuckDB mirror flush failed")
		return
	}
	b.flushed.Add(int64(len(batch)))
}

const insertRecordSQL = `INSERT INTO records (
	line_no, source, level, severity, type, message, path, duration_ms,
	status_code, operation, model, success, user_id, timestamp, raw_line
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertRecordBatch appends records in a single transaction. If the batch
// fails it is retried record by record to salvage as many as possible; the
// returned error reports how many were dropped.
func (s *Store) InsertRecordBatch(records []*model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertBatchTx(ctx, records); err == nil {
		return nil
	}

	var failed int
	for _, r := range records {
		if rerr := s.insertBatchTx(ctx, []*model.LogRecord{r}); rerr != nil {
			failed++
			log.WithFields(log.Fields{
				"line":  r.LineNo,
				"error": rerr,
			}).Warn("Dropping record from DuckDB mirror")
		}
	}
	if failed > 0 {
		return fmt.Errorf("duckdb: %d/%d records dropped", failed, len(records))
	}
	return nil
}

func (s *Store) insertBatchTx(ctx context.Context, records []*model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.LineNo, r.Source, nullString(r.LevelField), severityOf(r),
			nullString(r.TypeField), nullString(r.MessageField), nullString(r.PathField),
			nullFloat(r.DurationField), nullInt(r.StatusCodeField),
			nullString(r.OperationField), nullString(r.ModelField), nullBool(r.SuccessField),
			nullString(r.UserIDField), nullString(r.TimestampField), r.RawLine,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func severityOf(r *model.LogRecord) string {
	if r.Severity == "" {
		return logparse.Unset
	}
	return r.Severity
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
