package analyzer

import (
	"strings"

	"github.com/tinytelemetry/loglens/internal/model"
)

// Buckets is the set of analysis buckets a record belongs to.
type Buckets uint8

const (
	BucketError Buckets = 1 << iota
	BucketAPIRequest
	BucketSlowRequest
	BucketDatabase
	BucketSecurity
	BucketUserActivity
)

var bucketNames = []struct {
	bucket Buckets
	name   string
}{
	{BucketError, "error"},
	{BucketAPIRequest, "api_request"},
	{BucketSlowRequest, "slow_request"},
	{BucketDatabase, "database"},
	{BucketSecurity, "security"},
	{BucketUserActivity, "user_activity"},
}

// Has reports whether every bucket in x is set in b.
func (b Buckets) Has(x Buckets) bool { return b&x == x }

// Names lists the bucket names set in b, in declaration order.
func (b Buckets) Names() []string {
	var names []string
	for _, bn := range bucketNames {
		if b.Has(bn.bucket) {
			names = append(names, bn.name)
		}
	}
	return names
}

func (b Buckets) String() string {
	if b == 0 {
		return "none"
	}
	return strings.Join(b.Names(), "|")
}

// Classifier assigns records to buckets. The zero value uses the default slow threshold.
type Classifier struct {
	// SlowThresholdMS marks API requests strictly slower than this as slow.
	SlowThresholdMS float64
}

// Classify evaluates each bucket rule independently; a record may match several.
func (c Classifier) Classify(r *model.LogRecord) Buckets {
	threshold := c.SlowThresholdMS
	if threshold <= 0 {
		threshold = model.DefaultSlowThresholdMS
	}

	var b Buckets
	typ := r.Type()

	if strings.EqualFold(r.Level(), "error") || typ == model.TypeAPIRequestError {
		b |= BucketError
	}
	if typ == model.TypeAPIRequest {
		b |= BucketAPIRequest
		if r.DurationMS() > threshold {
			b |= BucketSlowRequest
		}
	}
	if typ == model.TypeDatabase {
		b |= BucketDatabase
	}
	if typ == model.TypeSecurity {
		b |= BucketSecurity
	}
	if r.UserID() != "" {
		b |= BucketUserActivity
	}
	return b
}

// Classify uses the default classifier.
func Classify(r *model.LogRecord) Buckets {
	return Classifier{}.Classify(r)
}
