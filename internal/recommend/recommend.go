// Package recommend turns aggregate statistics into advisories using fixed
// threshold rules.
package recommend

import (
	"fmt"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/stats"
)

const (
	DefaultSlowRequests     = 10
	DefaultErrorRatePercent = 5.0
	DefaultEndpointAvgMS    = 500.0
)

// NoActionMessage is emitted when no rule fires.
const NoActionMessage = "System running well, no optimization recommendations"

// Thresholds configures the rules. Every comparison is strict.
type Thresholds struct {
	SlowRequests     int
	ErrorRatePercent float64
	EndpointAvgMS    float64
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowRequests:     DefaultSlowRequests,
		ErrorRatePercent: DefaultErrorRatePercent,
		EndpointAvgMS:    DefaultEndpointAvgMS,
	}
}

// Evaluate runs every rule against s and returns all matches in rule order:
// slow requests, error rate, then one entry per slow endpoint in first-seen
// order. When nothing matches a single RuleNone entry is returned.
func Evaluate(s *analyzer.Snapshot, th Thresholds) []model.Recommendation {
	var recs []model.Recommendation

	if s.SlowCount > th.SlowRequests {
		recs = append(recs, model.Recommendation{
			Rule:    model.RuleSlowRequests,
			Message: fmt.Sprintf("Found %d slow requests, suggest optimizing database queries or adding cache", s.SlowCount),
		})
	}

	if s.ErrorCount > 0 {
		rate := stats.ErrorRate(s.ErrorCount, s.TotalRecords)
		if rate > th.ErrorRatePercent {
			recs = append(recs, model.Recommendation{
				Rule:    model.RuleErrorRate,
				Message: fmt.Sprintf("High error rate (%.1f%%), suggest checking error logs and fixing issues", rate),
			})
		}
	}

	for _, path := range s.EndpointOrder {
		ep := s.Endpoints[path]
		if ep == nil {
			continue
		}
		avg, ok := stats.Mean(ep.Durations)
		if ok && avg > th.EndpointAvgMS {
			recs = append(recs, model.Recommendation{
				Rule:    model.RuleSlowEndpoint,
				Message: fmt.Sprintf("Endpoint %s has average response time %.0fms, suggest optimization", path, avg),
				Path:    path,
			})
		}
	}

	if len(recs) == 0 {
		recs = append(recs, model.Recommendation{Rule: model.RuleNone, Message: NoActionMessage})
	}
	return recs
}
