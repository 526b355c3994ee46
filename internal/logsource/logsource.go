package logsource

import "github.com/tinytelemetry/loglens/internal/model"

// LogSource is a unified interface for line-oriented log inputs (file, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of log lines, closed at end of input
	Err() error                         // read error that ended the stream early, valid once Lines is closed
	Stop()                              // graceful shutdown
	Name() string                       // "file", "stdin"
}
