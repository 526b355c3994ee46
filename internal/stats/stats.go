// Package stats derives summary statistics from aggregated log data.
package stats

import (
	"math"
	"math/big"
	"sort"

	"github.com/tinytelemetry/loglens/internal/model"
)

// exactSumPrec is wide enough to hold the sum of any float64 values without
// rounding: the full exponent range plus headroom for the count.
const exactSumPrec = 2200

// Mean returns the arithmetic mean of values, correctly rounded from the exact
// sum. It cannot overflow for finite inputs. ok is false when values is empty.
func Mean(values []float64) (mean float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := new(big.Float).SetPrec(exactSumPrec)
	x := new(big.Float).SetPrec(exactSumPrec)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return naiveMean(values), true
		}
		sum.Add(sum, x.SetFloat64(v))
	}
	n := new(big.Float).SetPrec(exactSumPrec).SetInt64(int64(len(values)))
	mean, _ = sum.Quo(sum, n).Float64()
	return mean, true
}

func naiveMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Quantiles divides sorted data into n intervals of equal probability and
// returns the n-1 cut points, using the exclusive method (positions are
// computed over len(data)+1). data must be sorted ascending and hold at least
// two values; n must be at least 1.
func Quantiles(sorted []float64, n int) []float64 {
	ld := len(sorted)
	if n < 1 || ld < 2 {
		return nil
	}
	m := ld + 1
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		j := i * m / n
		if j < 1 {
			j = 1
		} else if j > ld-1 {
			j = ld - 1
		}
		delta := i*m - j*n
		lo, hi := sorted[j-1], sorted[j]
		interpolated := (lo*float64(n-delta) + hi*float64(delta)) / float64(n)
		if math.IsNaN(interpolated) || math.IsInf(interpolated, 0) {
			// scale first when the weighted sum overflows near MaxFloat64
			interpolated = lo/float64(n)*float64(n-delta) + hi/float64(n)*float64(delta)
		}
		out = append(out, interpolated)
	}
	return out
}

// Percentile95 returns the 19th of the twenty-quantile cut points of values.
// ok is false when fewer than two samples exist. With few samples the result
// can fall outside the observed range.
func Percentile95(values []float64) (p95 float64, ok bool) {
	if len(values) < 2 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Quantiles(sorted, 20)[18], true
}

// SuccessRate is the share of requests with a 2xx status code, in percent.
func SuccessRate(statusCodes map[int]int, total int) float64 {
	if total <= 0 {
		return 0
	}
	ok := 0
	for code, n := range statusCodes {
		if code >= 200 && code < 300 {
			ok += n
		}
	}
	return float64(ok) / float64(total) * 100
}

// FailureRate is failures over count, in percent.
func FailureRate(failures, count int) float64 {
	if count <= 0 {
		return 0
	}
	return float64(failures) / float64(count) * 100
}

// ErrorRate is errors over all records, in percent. Zero records give zero.
func ErrorRate(errors, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(errors) / float64(total) * 100
}

// SummarizeEndpoint derives the rollup for one endpoint.
func SummarizeEndpoint(path string, s *model.EndpointStats) model.EndpointSummary {
	sum := model.EndpointSummary{
		Path:        path,
		Count:       s.Count,
		SuccessRate: SuccessRate(s.StatusCodes, s.Count),
		StatusCodes: s.StatusCodes,
	}
	sum.AvgMS, _ = Mean(s.Durations)
	sum.P95MS, sum.HasP95 = Percentile95(s.Durations)
	return sum
}

// EndpointSummaries summarizes every endpoint, ordered by count descending
// then path ascending.
func EndpointSummaries(endpoints map[string]*model.EndpointStats) []model.EndpointSummary {
	out := make([]model.EndpointSummary, 0, len(endpoints))
	for path, s := range endpoints {
		out = append(out, SummarizeEndpoint(path, s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// SummarizeDB derives the rollup for one database operation key.
func SummarizeDB(key string, s *model.DbOperationStats) model.DBSummary {
	sum := model.DBSummary{
		Key:         key,
		Count:       s.Count,
		Failures:    s.Failures,
		FailureRate: FailureRate(s.Failures, s.Count),
	}
	sum.AvgMS, _ = Mean(s.Durations)
	return sum
}

// DBSummaries summarizes every database operation, ordered by count
// descending then key ascending.
func DBSummaries(ops map[string]*model.DbOperationStats) []model.DBSummary {
	out := make([]model.DBSummary, 0, len(ops))
	for key, s := range ops {
		out = append(out, SummarizeDB(key, s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// TopCounts returns up to n entries ordered by count descending then key
// ascending. n <= 0 returns every entry.
func TopCounts(counts map[string]int, n int) []model.KeyCount {
	out := make([]model.KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, model.KeyCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SlowestRequests returns up to n requests ordered by duration descending,
// then path, then timestamp (missing timestamps first). The input is not modified.
func SlowestRequests(reqs []model.SlowRequest, n int) []model.SlowRequest {
	out := make([]model.SlowRequest, len(reqs))
	copy(out, reqs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DurationMS != b.DurationMS {
			return a.DurationMS > b.DurationMS
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return timestampOf(a) < timestampOf(b)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func timestampOf(r model.SlowRequest) string {
	if r.Timestamp == nil {
		return ""
	}
	return *r.Timestamp
}
