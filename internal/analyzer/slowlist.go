package analyzer

import (
	"container/heap"

	"github.com/tinytelemetry/loglens/internal/model"
)

// slowList retains slow requests. With a zero limit it keeps every entry in
// input order; otherwise it keeps the limit slowest entries in a min-heap.
type slowList struct {
	limit   int
	entries slowHeap
}

func newSlowList(limit int) *slowList {
	return &slowList{limit: limit}
}

func (l *slowList) add(req model.SlowRequest) {
	if l.limit <= 0 {
		l.entries = append(l.entries, req)
		return
	}
	if len(l.entries) < l.limit {
		heap.Push(&l.entries, req)
		return
	}
	// Ties keep the earlier entry.
	if req.DurationMS > l.entries[0].DurationMS {
		l.entries[0] = req
		heap.Fix(&l.entries, 0)
	}
}

func (l *slowList) len() int { return len(l.entries) }

func (l *slowList) items() []model.SlowRequest {
	out := make([]model.SlowRequest, len(l.entries))
	copy(out, l.entries)
	return out
}

type slowHeap []model.SlowRequest

func (h slowHeap) Len() int            { return len(h) }
func (h slowHeap) Less(i, j int) bool  { return h[i].DurationMS < h[j].DurationMS }
func (h slowHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *slowHeap) Push(x interface{}) { *h = append(*h, x.(model.SlowRequest)) }
func (h *slowHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
