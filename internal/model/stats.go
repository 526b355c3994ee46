package model

// EndpointStats aggregates API requests for one path.
// Count == len(Durations) == sum(StatusCodes) at all times.
type EndpointStats struct {
	Count       int
	Durations   []float64
	StatusCodes map[int]int
}

// NewEndpointStats returns the zero aggregate for a newly seen path.
func NewEndpointStats() *EndpointStats {
	return &EndpointStats{StatusCodes: make(map[int]int)}
}

// DbOperationStats aggregates database operations for one "model.operation" key.
type DbOperationStats struct {
	Count     int
	Durations []float64
	Failures  int
}

// NewDbOperationStats returns the zero aggregate for a newly seen operation.
func NewDbOperationStats() *DbOperationStats {
	return &DbOperationStats{}
}

// UserActivity counts actions per user and security-typed records overall.
type UserActivity struct {
	Actions        map[string]int
	SecurityEvents int
}

// ErrorEntry is a retained error record.
type ErrorEntry struct {
	LineNo    int    `json:"line"`
	Level     string `json:"level,omitempty"`
	Type      string `json:"type,omitempty"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp,omitempty"`
}

// SlowRequest is a retained API request slower than the slow threshold.
type SlowRequest struct {
	Path       string  `json:"path"`
	DurationMS float64 `json:"duration"`
	Timestamp  *string `json:"timestamp"`
}

// EndpointSummary is the derived rollup for one endpoint.
type EndpointSummary struct {
	Path        string
	Count       int
	AvgMS       float64
	P95MS       float64
	HasP95      bool
	SuccessRate float64
	StatusCodes map[int]int
}

// DBSummary is the derived rollup for one database operation key.
type DBSummary struct {
	Key         string
	Count       int
	AvgMS       float64
	Failures    int
	FailureRate float64
}

// KeyCount is one entry of a ranked counter.
type KeyCount struct {
	Key   string
	Count int
}
