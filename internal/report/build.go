// Package report assembles and persists the end-of-run analysis report.
package report

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/stats"
)

// Layouts of AnalysisReport.Timestamp. The fraction is dropped when the
// microsecond is zero.
const (
	TimestampLayout      = "2006-01-02T15:04:05.000000"
	TimestampLayoutWhole = "2006-01-02T15:04:05"
)

// FormatTimestamp renders t in UTC with microsecond precision.
func FormatTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(TimestampLayoutWhole)
	}
	return t.Format(TimestampLayout)
}

// finite clamps an overflowed value to the largest float so the report stays
// encodable. NaN becomes zero.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// Meta carries run-level facts that are not part of the aggregate state.
type Meta struct {
	RunID        string
	Source       string
	LinesRead    int
	LinesSkipped int
	// Now overrides the build time. Zero means time.Now().
	Now time.Time
}

// Build assembles the report from a completed aggregate. It is called once
// per run, after the last record; the timestamp is the build time in UTC.
func Build(s *analyzer.Snapshot, recs []model.Recommendation, meta Meta) *model.AnalysisReport {
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &model.AnalysisReport{
		Timestamp:       FormatTimestamp(now),
		RunID:           runID,
		Source:          meta.Source,
		LinesRead:       meta.LinesRead,
		LinesSkipped:    meta.LinesSkipped,
		TotalLogs:       s.TotalRecords,
		TotalErrors:     s.ErrorCount,
		SlowRequests:    s.SlowCount,
		APIStats:        make(map[string]model.EndpointReport, len(s.Endpoints)),
		DBStats:         make(map[string]model.DBReport, len(s.DBOps)),
		ActiveUsers:     len(s.UserActions),
		SecurityEvents:  s.SecurityEvents,
		SeverityCounts:  s.SeverityCounts,
		ErrorPatterns:   s.ErrorPatterns,
		Recommendations: recs,
	}
	if r.SeverityCounts == nil {
		r.SeverityCounts = map[string]int{}
	}
	if r.ErrorPatterns == nil {
		r.ErrorPatterns = []model.PatternCount{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []model.Recommendation{}
	}

	for path, ep := range s.Endpoints {
		sum := stats.SummarizeEndpoint(path, ep)
		er := model.EndpointReport{
			Count:       sum.Count,
			AvgMS:       finite(sum.AvgMS),
			StatusCodes: sum.StatusCodes,
			SuccessRate: sum.SuccessRate,
		}
		// a P95 that overflowed is omitted like one that was never computed
		if sum.HasP95 && !math.IsNaN(sum.P95MS) && !math.IsInf(sum.P95MS, 0) {
			p95 := sum.P95MS
			er.P95MS = &p95
		}
		r.APIStats[path] = er
	}
	for key, op := range s.DBOps {
		sum := stats.SummarizeDB(key, op)
		r.DBStats[key] = model.DBReport{
			Count:       sum.Count,
			AvgMS:       finite(sum.AvgMS),
			Failures:    sum.Failures,
			FailureRate: sum.FailureRate,
		}
	}
	return r
}
