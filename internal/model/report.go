package model

// Recommendation rule identifiers.
const (
	RuleSlowRequests = "slow_requests"
	RuleErrorRate    = "error_rate"
	RuleSlowEndpoint = "slow_endpoint"
	RuleNone         = "none"
)

// Recommendation is a human-readable advisory produced by a threshold rule.
type Recommendation struct {
	Rule    string `json:"rule" yaml:"rule"`
	Message string `json:"message" yaml:"message"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// AnalysisReport is the write-once summary of a completed run.
type AnalysisReport struct {
	Timestamp    string `json:"timestamp" yaml:"timestamp"`
	RunID        string `json:"run_id" yaml:"run_id"`
	Source       string `json:"source" yaml:"source"`
	LinesRead    int    `json:"lines_read" yaml:"lines_read"`
	LinesSkipped int    `json:"lines_skipped" yaml:"lines_skipped"`
	TotalLogs    int    `json:"total_logs" yaml:"total_logs"`
	TotalErrors  int    `json:"total_errors" yaml:"total_errors"`
	SlowRequests int    `json:"slow_requests" yaml:"slow_requests"`

	APIStats map[string]EndpointReport `json:"api_stats" yaml:"api_stats"`
	DBStats  map[string]DBReport       `json:"db_stats" yaml:"db_stats"`

	ErrorPatterns []PatternCount `json:"error_patterns" yaml:"error_patterns"`

	ActiveUsers     int              `json:"active_users" yaml:"active_users"`
	SecurityEvents  int              `json:"security_events" yaml:"security_events"`
	SeverityCounts  map[string]int   `json:"severity_counts" yaml:"severity_counts"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
}

// PatternCount is one mined message template and how many messages matched it.
type PatternCount struct {
	Template string `json:"template" yaml:"template"`
	Count    int    `json:"count" yaml:"count"`
}

// EndpointReport is the persisted per-endpoint rollup.
type EndpointReport struct {
	Count       int         `json:"count" yaml:"count"`
	AvgMS       float64     `json:"avg_ms" yaml:"avg_ms"`
	StatusCodes map[int]int `json:"status_codes" yaml:"status_codes"`
	P95MS       *float64    `json:"p95_ms,omitempty" yaml:"p95_ms,omitempty"`
	SuccessRate float64     `json:"success_rate" yaml:"success_rate"`
}

// DBReport is the persisted per-operation rollup.
type DBReport struct {
	Count       int     `json:"count" yaml:"count"`
	AvgMS       float64 `json:"avg_ms" yaml:"avg_ms"`
	Failures    int     `json:"failures" yaml:"failures"`
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`
}
