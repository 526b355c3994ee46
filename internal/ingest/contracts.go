package ingest

import "github.com/tinytelemetry/loglens/internal/model"

// RecordSink receives every successfully parsed record, in input order.
type RecordSink = model.RecordSink

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(record *model.LogRecord)

func (f SinkFunc) Add(record *model.LogRecord) { f(record) }

// MultiSink fans a record out to several sinks in order. Nil sinks are skipped.
func MultiSink(sinks ...RecordSink) RecordSink {
	active := make([]RecordSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(record *model.LogRecord) {
		for _, s := range active {
			s.Add(record)
		}
	})
}
