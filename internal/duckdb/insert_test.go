package duckdb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/loglens/internal/model"
)

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for _, r := range parseRecords(t, sampleLines...) {
		buf.Add(r)
	}
	buf.Stop()

	if got := countRows(t, store, "records"); got != 5 {
		t.Errorf("after Stop, records = %d, want 5", got)
	}
	if buf.Flushed() != 5 || buf.Failed() != 0 {
		t.Errorf("Flushed=%d Failed=%d, want 5/0", buf.Flushed(), buf.Failed())
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 10, FlushInterval: time.Hour})

	line := `{"type":"api_request","path":"/p","duration_ms":5}`
	for i := 0; i < 25; i++ {
		buf.Add(parseRecords(t, line)[0])
	}
	buf.Stop()

	if got := countRows(t, store, "records"); got != 25 {
		t.Errorf("records = %d, want 25", got)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	buf := NewInsertBuffer(&recordingWriter{})
	buf.Stop()
	buf.Stop()
	buf.Add(&model.LogRecord{})
}

type recordingWriter struct {
	mu      sync.Mutex
	batches int
	records int
	fail    bool
}

func (w *recordingWriter) InsertRecordBatch(records []*model.LogRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("write failed")
	}
	w.batches++
	w.records += len(records)
	return nil
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	w := &recordingWriter{}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 7, FlushInterval: time.Millisecond})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				buf.Add(&model.LogRecord{LineNo: i})
			}
		}()
	}
	wg.Wait()
	buf.Stop()

	if w.records != 1000 {
		t.Errorf("records = %d, want 1000", w.records)
	}
}

func TestInsertBuffer_WriteErrorsAreCounted(t *testing.T) {
	w := &recordingWriter{fail: true}
	buf := NewInsertBuffer(w)
	buf.Add(&model.LogRecord{})
	buf.Add(&model.LogRecord{})
	buf.Stop()

	if buf.Failed() != 2 || buf.Flushed() != 0 {
		t.Errorf("Flushed=%d Failed=%d, want 0/2", buf.Flushed(), buf.Failed())
	}
}
