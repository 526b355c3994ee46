package ingest

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/loglens/internal/model"
)

// SkipReason classifies why a line produced no record.
type SkipReason string

const (
	SkipMalformed SkipReason = "malformed"
	SkipBlank     SkipReason = "blank"
	SkipOversize  SkipReason = "oversize"
)

// Counts summarizes what a Processor has seen so far.
type Counts struct {
	LinesRead int
	Parsed    int
	Skipped   int
	BySkip    map[SkipReason]int
}

// Observer is notified about every processed line. Used for metrics.
type Observer interface {
	LineRead(source string)
	LineSkipped(source string, reason SkipReason)
}

// Processor parses source lines and routes records to a sink.
// It is not safe for concurrent use: one goroutine owns it for a run.
type Processor struct {
	sink     RecordSink
	observer Observer
	counts   Counts
}

// ProcessResult holds the result of processing a line.
// Record is nil when the line was skipped.
type ProcessResult struct {
	Record *model.LogRecord
	Skip   SkipReason
}

// NewProcessor creates a processor that forwards parsed records to sink.
func NewProcessor(sink RecordSink, observer Observer) *Processor {
	return &Processor{
		sink:     sink,
		observer: observer,
		counts:   Counts{BySkip: make(map[SkipReason]int)},
	}
}

// ProcessEnvelope parses one line. Malformed, blank and oversize lines are
// skipped and counted; they never stop processing.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) ProcessResult {
	p.counts.LinesRead++
	if p.observer != nil {
		p.observer.LineRead(env.Source)
	}

	if env.Oversize {
		return p.skip(env, SkipOversize, nil)
	}

	record, err := ParseRecord(env.Line)
	if err != nil {
		if errors.Is(err, ErrBlankLine) {
			return p.skip(env, SkipBlank, nil)
		}
		return p.skip(env, SkipMalformed, err)
	}

	record.LineNo = env.LineNo
	record.Source = env.Source
	p.counts.Parsed++

	if p.sink != nil {
		p.sink.Add(record)
	}
	return ProcessResult{Record: record}
}

func (p *Processor) skip(env model.IngestEnvelope, reason SkipReason, err error) ProcessResult {
	p.counts.Skipped++
	p.counts.BySkip[reason]++
	if p.observer != nil {
		p.observer.LineSkipped(env.Source, reason)
	}
	if reason == SkipMalformed {
		log.WithFields(log.Fields{
			"source": env.Source,
			"line":   env.LineNo,
			"error":  err,
		}).Debug("Skipping malformed line")
	}
	return ProcessResult{Skip: reason}
}

// Counts returns a copy of the processor's line counters.
func (p *Processor) Counts() Counts {
	c := p.counts
	c.BySkip = make(map[SkipReason]int, len(p.counts.BySkip))
	for k, v := range p.counts.BySkip {
		c.BySkip[k] = v
	}
	return c
}
