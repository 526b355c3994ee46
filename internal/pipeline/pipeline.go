// Package pipeline drives one analysis run: a line source feeds the
// processor, which feeds the aggregator, in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/ingest"
	"github.com/tinytelemetry/loglens/internal/logsource"
	"github.com/tinytelemetry/loglens/internal/model"
)

var (
	// ErrInputUnreadable is returned when the input cannot be opened.
	ErrInputUnreadable = errors.New("pipeline: input unreadable")

	// ErrReadFailed is returned when the input fails after reading started.
	ErrReadFailed = errors.New("pipeline: read failed")
)

// BucketObserver is notified of the buckets each record landed in.
type BucketObserver interface {
	RecordClassified(b analyzer.Buckets)
}

// Options configures a run. Every field is optional.
type Options struct {
	Aggregator analyzer.Config
	Observer   ingest.Observer
	Buckets    BucketObserver
	// Mirror receives every parsed record after the aggregator. The caller
	// owns its lifecycle and must flush it before reading the mirrored data.
	Mirror model.RecordSink
}

// Result is the outcome of a completed run.
type Result struct {
	Source   string
	Counts   ingest.Counts
	Snapshot *analyzer.Snapshot
}

// Open opens the input named by path; "-" is standard input.
// Open failures wrap ErrInputUnreadable.
func Open(ctx context.Context, path string, conf logsource.Config) (*logsource.ReaderSource, error) {
	if path == "-" {
		return logsource.NewStdinSource(ctx, conf), nil
	}
	src, err := logsource.NewFileSource(ctx, path, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	return src, nil
}

// Run consumes src to the end and returns the aggregated result.
// If ctx is cancelled first, Run stops the source and returns the context
// error with no result: a run either completes or produces nothing.
func Run(ctx context.Context, src logsource.LogSource, opts Options) (*Result, error) {
	agg := analyzer.New(opts.Aggregator)

	var aggSink model.RecordSink = agg
	if opts.Buckets != nil {
		aggSink = ingest.SinkFunc(func(r *model.LogRecord) {
			opts.Buckets.RecordClassified(agg.Ingest(r))
		})
	}
	processor := ingest.NewProcessor(ingest.MultiSink(aggSink, opts.Mirror), opts.Observer)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	// Ingestion loop
	g.Go(func() error {
		defer close(done)
		lines := src.Lines()
		for {
			select {
			case <-gctx.Done():
				// the reader may be blocked in Read; do not wait for it
				return gctx.Err()
			case env, ok := <-lines:
				if !ok {
					return nil
				}
				processor.ProcessEnvelope(env)
			}
		}
	})

	// Stop the source when the run is cancelled.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			src.Stop()
		case <-done:
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := src.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	counts := processor.Counts()
	log.WithFields(log.Fields{
		"source":  src.Name(),
		"lines":   counts.LinesRead,
		"parsed":  counts.Parsed,
		"skipped": counts.Skipped,
	}).Info("Analysis pass complete")

	return &Result{
		Source:   sourceLabel(src),
		Counts:   counts,
		Snapshot: agg.Snapshot(),
	}, nil
}

func sourceLabel(src logsource.LogSource) string {
	if l, ok := src.(interface{ Label() string }); ok {
		return l.Label()
	}
	return src.Name()
}
