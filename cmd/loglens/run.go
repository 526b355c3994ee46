package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/duckdb"
	"github.com/tinytelemetry/loglens/internal/httpserver"
	"github.com/tinytelemetry/loglens/internal/logging"
	"github.com/tinytelemetry/loglens/internal/logsource"
	"github.com/tinytelemetry/loglens/internal/metrics"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/pipeline"
	"github.com/tinytelemetry/loglens/internal/recommend"
	"github.com/tinytelemetry/loglens/internal/report"
)

// runAnalysis performs one complete run: read, aggregate, report, and
// optionally serve. A cancelled run writes no report.
func runAnalysis(parent context.Context, cfg appConfig, out io.Writer) error {
	cleanupLogger := logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer cleanupLogger()

	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		cancel()

		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nForce shutdown.")
			os.Exit(exitInterrupted)
		case <-time.After(10 * time.Second):
			fmt.Fprintln(os.Stderr, "Shutdown timed out, forcing exit.")
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	runID := uuid.NewString()
	log.WithFields(log.Fields{"run_id": runID, "input": cfg.File}).Info("Starting analysis")

	src, err := pipeline.Open(ctx, cfg.File, logsource.Config{
		BufferSize:  cfg.SourceBuffer,
		MaxLineSize: cfg.MaxLineSize,
	})
	if err != nil {
		return err
	}

	counters := metrics.New()

	// Optional DuckDB mirror of the current run's records.
	var (
		store  *duckdb.Store
		mirror *duckdb.InsertBuffer
	)
	if cfg.DBPath != "" {
		store, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			src.Stop()
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer store.Close()
		if err := store.Reset(); err != nil {
			src.Stop()
			return err
		}
		mirror = duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
			BatchSize:     cfg.InsertBatchSize,
			FlushInterval: cfg.InsertFlushInterval,
		})
		defer mirror.Stop()
	}

	opts := pipeline.Options{
		Aggregator: analyzer.Config{
			SlowThresholdMS:   cfg.SlowThresholdMS,
			MaxRetainedSlow:   cfg.MaxRetainedSlow,
			MaxRetainedErrors: cfg.MaxRetainedErrors,
		},
		Observer: counters,
		Buckets:  counters,
	}
	if mirror != nil {
		opts.Mirror = mirror
	}

	res, err := pipeline.Run(ctx, src, opts)
	if err != nil {
		return err
	}
	if mirror != nil {
		mirror.Stop()
		log.WithFields(log.Fields{
			"flushed": mirror.Flushed(),
			"failed":  mirror.Failed(),
		}).Info("DuckDB mirror flushed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := res.Snapshot
	recs := recommend.Evaluate(snap, cfg.thresholds())
	rep := report.Build(snap, recs, report.Meta{
		RunID:        runID,
		Source:       res.Source,
		LinesRead:    res.Counts.LinesRead,
		LinesSkipped: res.Counts.Skipped,
	})

	writer := &report.Writer{Dir: cfg.ReportDir, Format: format, KeepLast: cfg.ReportKeep}
	reportPath, err := writer.Write(rep, time.Now())
	if err != nil {
		return err
	}
	counters.Reports.Inc(string(format))

	newConsole(out, cfg.NoColor, consoleLimits{
		Errors:    cfg.TopErrors,
		Slow:      cfg.TopSlow,
		Endpoints: cfg.TopEndpoints,
		DBOps:     cfg.TopDBOps,
		Users:     cfg.TopUsers,
	}).Print(snap, rep, cfg.SlowThresholdMS, reportPath)

	if !cfg.Serve {
		return nil
	}
	return serve(ctx, cfg, out, rep, store, counters)
}

// serve exposes the finished run until the context is cancelled.
func serve(ctx context.Context, cfg appConfig, out io.Writer, rep *model.AnalysisReport, store *duckdb.Store, counters *metrics.Counters) error {
	opts := httpserver.Options{
		Report:  rep,
		Metrics: counters.Handler(),
	}
	if store != nil {
		opts.Store = store
	}

	apiServer := httpserver.NewServer(cfg.APIAddr, opts)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	printServeBanner(out, cfg, apiServer.Addr(), store != nil)

	<-ctx.Done()
	// Interrupting the server is the normal way to stop it.
	return nil
}
