// Package patterns groups free-text messages into templates with drain3, so
// "user 42 not found" and "user 7 not found" roll up as "user <*> not found".
package patterns

import (
	"sort"
	"strings"

	"github.com/jaeyo/go-drain3/pkg/drain3"

	"github.com/tinytelemetry/loglens/internal/model"
)

// Miner tuning. Depth and similarity match the drain3 reference defaults.
const (
	DefaultDepth       = 4
	DefaultSimilarity  = 0.4
	DefaultMaxChildren = 100
	DefaultMaxClusters = 1000
)

// Miner clusters messages into templates. It is not safe for concurrent use;
// the aggregator feeds it from its single consumer goroutine.
type Miner struct {
	drain *drain3.Drain
	total int
}

// NewMiner creates a miner with the default tuning.
func NewMiner() (*Miner, error) {
	d, err := drain3.NewDrain(
		drain3.WithDepth(DefaultDepth),
		drain3.WithSimTh(DefaultSimilarity),
		drain3.WithMaxChildren(DefaultMaxChildren),
		drain3.WithMaxCluster(DefaultMaxClusters),
	)
	if err != nil {
		return nil, err
	}
	return &Miner{drain: d}, nil
}

// Add feeds one message. Blank messages are ignored.
func (m *Miner) Add(message string) error {
	if m == nil || strings.TrimSpace(message) == "" {
		return nil
	}
	if _, _, err := m.drain.AddLogMessage(message); err != nil {
		return err
	}
	m.total++
	return nil
}

// Total is the number of messages clustered so far.
func (m *Miner) Total() int {
	if m == nil {
		return 0
	}
	return m.total
}

// Top returns up to n templates ordered by count descending then template
// ascending. n <= 0 returns every template.
func (m *Miner) Top(n int) []model.PatternCount {
	out := []model.PatternCount{}
	if m == nil {
		return out
	}
	for _, c := range m.drain.GetClusters() {
		out = append(out, model.PatternCount{Template: c.GetTemplate(), Count: int(c.Size)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Template < out[j].Template
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
