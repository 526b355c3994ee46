package analyzer

import (
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/loglens/internal/logparse"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/patterns"
)

// Config holds tunable parameters for the aggregator.
type Config struct {
	// SlowThresholdMS is the API latency above which a request is slow.
	SlowThresholdMS float64
	// MaxRetainedSlow caps the retained slow-request list to the slowest N.
	// Zero keeps every slow request.
	MaxRetainedSlow int
	// MaxRetainedErrors caps the retained error list to the first N errors.
	// Zero keeps every error.
	MaxRetainedErrors int
}

// Aggregator owns every aggregate store for one run. Records must be ingested
// from a single goroutine, in input order.
type Aggregator struct {
	classifier        Classifier
	maxRetainedErrors int

	total int

	errorCount     int
	errors         []model.ErrorEntry
	errorTypes     *Counter
	errorEndpoints *Counter
	errorPatterns  *patterns.Miner

	endpoints *KeyedStore[*model.EndpointStats]
	slowCount int
	slow      *slowList

	dbOps *KeyedStore[*model.DbOperationStats]

	userActions    *Counter
	securityEvents int

	severities *Counter
}

// New creates an empty aggregator.
func New(conf ...Config) *Aggregator {
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	miner, err := patterns.NewMiner()
	if err != nil {
		// only reachable with invalid tuning; the exact error counters still work
		log.WithError(err).Warn("Error pattern mining disabled")
	}
	return &Aggregator{
		classifier:        Classifier{SlowThresholdMS: c.SlowThresholdMS},
		errorPatterns:     miner,
		maxRetainedErrors: c.MaxRetainedErrors,
		errorTypes:        NewCounter(),
		errorEndpoints:    NewCounter(),
		endpoints:         NewKeyedStore(model.NewEndpointStats),
		slow:              newSlowList(c.MaxRetainedSlow),
		dbOps:             NewKeyedStore(model.NewDbOperationStats),
		userActions:       NewCounter(),
		severities:        NewCounter(),
	}
}

// Add implements model.RecordSink.
func (a *Aggregator) Add(record *model.LogRecord) {
	a.Ingest(record)
}

// Ingest classifies one record and updates the stores for each bucket it
// belongs to. It returns the buckets so callers can observe them.
func (a *Aggregator) Ingest(r *model.LogRecord) Buckets {
	if r == nil {
		return 0
	}
	a.total++

	severity := r.Severity
	if severity == "" {
		severity = logparse.Unset
	}
	a.severities.Inc(severity)

	b := a.classifier.Classify(r)

	if b.Has(BucketError) {
		a.errorCount++
		if a.maxRetainedErrors <= 0 || len(a.errors) < a.maxRetainedErrors {
			a.errors = append(a.errors, model.ErrorEntry{
				LineNo:    r.LineNo,
				Level:     r.Level(),
				Type:      r.Type(),
				Message:   r.Message(),
				Path:      r.Path(),
				Timestamp: r.Timestamp(),
			})
		}
		a.errorTypes.Inc(r.Message())
		a.errorEndpoints.Inc(r.Path())
		if err := a.errorPatterns.Add(r.Message()); err != nil {
			log.WithError(err).WithField("line", r.LineNo).Debug("Error pattern mining failed")
		}
	}

	if b.Has(BucketAPIRequest) {
		path := r.Path()
		duration := r.DurationMS()
		stats := a.endpoints.GetOrCreate(path)
		stats.Count++
		stats.Durations = append(stats.Durations, duration)
		stats.StatusCodes[r.StatusCode()]++

		if b.Has(BucketSlowRequest) {
			a.slowCount++
			var ts *string
			if r.HasTimestamp() {
				s := r.Timestamp()
				ts = &s
			}
			a.slow.add(model.SlowRequest{Path: path, DurationMS: duration, Timestamp: ts})
		}
	}

	if b.Has(BucketDatabase) {
		stats := a.dbOps.GetOrCreate(r.Model() + "." + r.Operation())
		stats.Count++
		stats.Durations = append(stats.Durations, r.DurationMS())
		if !r.Success() {
			stats.Failures++
		}
	}

	if b.Has(BucketUserActivity) {
		a.userActions.Inc(r.UserID())
	}

	if b.Has(BucketSecurity) {
		a.securityEvents++
	}

	return b
}

// Total returns the number of records ingested so far.
func (a *Aggregator) Total() int { return a.total }

// Snapshot is a read-only view of the aggregates after ingestion.
// Duration slices are shared with the aggregator and must not be modified.
type Snapshot struct {
	TotalRecords int

	ErrorCount     int
	Errors         []model.ErrorEntry
	ErrorTypes     map[string]int
	ErrorEndpoints map[string]int
	// ErrorPatterns groups error messages into templates, most frequent first.
	ErrorPatterns  []model.PatternCount

	// EndpointOrder lists endpoint paths in first-seen order.
	EndpointOrder []string
	Endpoints     map[string]*model.EndpointStats

	SlowCount    int
	SlowRequests []model.SlowRequest

	DBOrder []string
	DBOps   map[string]*model.DbOperationStats

	UserActions    map[string]int
	SecurityEvents int

	SeverityCounts map[string]int
}

// Snapshot copies the current aggregate state.
func (a *Aggregator) Snapshot() *Snapshot {
	s := &Snapshot{
		TotalRecords:   a.total,
		ErrorCount:     a.errorCount,
		Errors:         append([]model.ErrorEntry(nil), a.errors...),
		ErrorTypes:     a.errorTypes.Map(),
		ErrorEndpoints: a.errorEndpoints.Map(),
		ErrorPatterns:  a.errorPatterns.Top(0),
		EndpointOrder:  a.endpoints.Keys(),
		Endpoints:      make(map[string]*model.EndpointStats, a.endpoints.Len()),
		SlowCount:      a.slowCount,
		SlowRequests:   a.slow.items(),
		DBOrder:        a.dbOps.Keys(),
		DBOps:          make(map[string]*model.DbOperationStats, a.dbOps.Len()),
		UserActions:    a.userActions.Map(),
		SecurityEvents: a.securityEvents,
		SeverityCounts: a.severities.Map(),
	}

	for _, path := range s.EndpointOrder {
		src, _ := a.endpoints.Get(path)
		codes := make(map[int]int, len(src.StatusCodes))
		for code, n := range src.StatusCodes {
			codes[code] = n
		}
		s.Endpoints[path] = &model.EndpointStats{
			Count:       src.Count,
			Durations:   src.Durations[:len(src.Durations):len(src.Durations)],
			StatusCodes: codes,
		}
	}
	for _, key := range s.DBOrder {
		src, _ := a.dbOps.Get(key)
		s.DBOps[key] = &model.DbOperationStats{
			Count:     src.Count,
			Durations: src.Durations[:len(src.Durations):len(src.Durations)],
			Failures:  src.Failures,
		}
	}
	return s
}
