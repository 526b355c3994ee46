// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/ingest"
)

type Counter interface {
	Inc(labels ...string)
}

type PrometheusCounter struct {
	counter *prometheus.CounterVec
}

func newPrometheusCounter(reg prometheus.Registerer, name, help string, labels []string) *PrometheusCounter {
	c := &PrometheusCounter{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loglens",
			Name:      name,
			Help:      help,
		}, labels),
	}
	reg.MustRegister(c.counter)
	return c
}

func (p *PrometheusCounter) Inc(labels ...string) {
	p.counter.WithLabelValues(labels...).Inc()
}

// Counters holds every counter of one registry. It implements
// ingest.Observer and the pipeline bucket observer.
type Counters struct {
	reg *prometheus.Registry

	LinesRead    Counter
	LinesSkipped Counter
	Records      Counter
	Reports      Counter
}

var _ ingest.Observer = (*Counters)(nil)

// New creates counters on a private registry, so several runs (and tests)
// can coexist in one process.
func New() *Counters {
	reg := prometheus.NewRegistry()
	return &Counters{
		reg: reg,
		LinesRead: newPrometheusCounter(reg,
			"lines_read_total",
			"Number of input lines read",
			[]string{"source"},
		),
		LinesSkipped: newPrometheusCounter(reg,
			"lines_skipped_total",
			"Number of input lines skipped",
			[]string{"source", "reason"},
		),
		Records: newPrometheusCounter(reg,
			"records_total",
			"Number of parsed records per analysis bucket",
			[]string{"bucket"},
		),
		Reports: newPrometheusCounter(reg,
			"reports_written_total",
			"Number of reports written",
			[]string{"format"},
		),
	}
}

func (c *Counters) LineRead(source string) {
	c.LinesRead.Inc(source)
}

func (c *Counters) LineSkipped(source string, reason ingest.SkipReason) {
	c.LinesSkipped.Inc(source, string(reason))
}

// RecordClassified counts the record once per bucket, or under "none".
func (c *Counters) RecordClassified(b analyzer.Buckets) {
	names := b.Names()
	if len(names) == 0 {
		c.Records.Inc("none")
		return
	}
	for _, name := range names {
		c.Records.Inc(name)
	}
}

// Registry returns the underlying registry.
func (c *Counters) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
