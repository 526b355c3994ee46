package main

import (
	"time"

	"github.com/tinytelemetry/loglens/internal/duckdb"
	"github.com/tinytelemetry/loglens/internal/logsource"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/recommend"
)

const (
	defaultReportDir           = "."
	defaultReportFormat        = "json"
	defaultReportKeep          = 0 // 0 = keep every report
	defaultMaxLineSize         = logsource.DefaultMaxLineSize
	defaultSourceBuffer        = logsource.DefaultBuffer
	defaultInsertBatchSize     = duckdb.DefaultBatchSize
	defaultInsertFlushInterval = duckdb.DefaultFlushInterval
	defaultQueryTimeout        = model.DefaultQueryTimeout
	defaultAPIAddr             = "127.0.0.1:3000"
	defaultLogLevel            = "warn"
	defaultLogFormat           = "text"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	File string `mapstructure:"file"`

	ReportDir    string `mapstructure:"report-dir"`
	ReportFormat string `mapstructure:"report-format"`
	ReportKeep   int    `mapstructure:"report-keep"`

	MaxLineSize       int `mapstructure:"max-line-size"`
	SourceBuffer      int `mapstructure:"source-buffer"`
	MaxRetainedSlow   int `mapstructure:"max-retained-slow"`
	MaxRetainedErrors int `mapstructure:"max-retained-errors"`

	TopEndpoints int `mapstructure:"top-endpoints"`
	TopDBOps     int `mapstructure:"top-db-ops"`
	TopErrors    int `mapstructure:"top-errors"`
	TopSlow      int `mapstructure:"top-slow"`
	TopUsers     int `mapstructure:"top-users"`

	SlowThresholdMS          float64 `mapstructure:"slow-threshold-ms"`
	SlowRequestThreshold     int     `mapstructure:"slow-request-threshold"`
	ErrorRateThreshold       float64 `mapstructure:"error-rate-threshold"`
	EndpointLatencyThreshold float64 `mapstructure:"endpoint-latency-threshold"`

	DBPath              string        `mapstructure:"db-path"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`

	Serve        bool          `mapstructure:"serve"`
	APIAddr      string        `mapstructure:"api-addr"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`
	NoColor   bool   `mapstructure:"no-color"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

func (c appConfig) thresholds() recommend.Thresholds {
	return recommend.Thresholds{
		SlowRequests:     c.SlowRequestThreshold,
		ErrorRatePercent: c.ErrorRateThreshold,
		EndpointAvgMS:    c.EndpointLatencyThreshold,
	}
}

func setDefaults(set func(key string, value interface{})) {
	set("report-dir", defaultReportDir)
	set("report-format", defaultReportFormat)
	set("report-keep", defaultReportKeep)
	set("max-line-size", defaultMaxLineSize)
	set("source-buffer", defaultSourceBuffer)
	set("max-retained-slow", 0)
	set("max-retained-errors", 0)
	set("top-endpoints", model.DefaultTopEndpoints)
	set("top-db-ops", model.DefaultTopDBOps)
	set("top-errors", model.DefaultTopErrors)
	set("top-slow", model.DefaultTopSlow)
	set("top-users", model.DefaultTopUsers)
	set("slow-threshold-ms", model.DefaultSlowThresholdMS)
	set("slow-request-threshold", recommend.DefaultSlowRequests)
	set("error-rate-threshold", recommend.DefaultErrorRatePercent)
	set("endpoint-latency-threshold", recommend.DefaultEndpointAvgMS)
	set("db-path", "")
	set("insert-batch-size", defaultInsertBatchSize)
	set("insert-flush-interval", defaultInsertFlushInterval)
	set("serve", false)
	set("api-addr", defaultAPIAddr)
	set("query-timeout", defaultQueryTimeout)
	set("log-level", defaultLogLevel)
	set("log-format", defaultLogFormat)
	set("log-file", "")
	set("no-color", false)
}
