package health

import (
	"sync"
	"time"
)

// CycleRecord is one monitoring cycle's worth of results.
type CycleRecord struct {
	Timestamp time.Time
	Score     int
	Results   []CheckResult
}

// History is a bounded ring buffer of cycle records. When capacity is
// exceeded the oldest cycle is evicted first.
type History struct {
	mu       sync.Mutex
	records  []CycleRecord
	start    int
	count    int
	capacity int
}

// NewHistory creates a ring buffer holding up to capacity cycles.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		records:  make([]CycleRecord, capacity),
		capacity: capacity,
	}
}

// Append records a cycle, evicting the oldest when full.
func (h *History) Append(rec CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := (h.start + h.count) % h.capacity
	h.records[idx] = rec
	if h.count < h.capacity {
		h.count++
	} else {
		h.start = (h.start + 1) % h.capacity
	}
}

// Len returns the number of cycles currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Recent returns up to limit most recent cycles, oldest first. A limit of 0
// or less returns everything retained.
func (h *History) Recent(limit int) []CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CycleRecord, 0, n)
	for i := h.count - n; i < h.count; i++ {
		out = append(out, h.records[(h.start+i)%h.capacity])
	}
	return out
}

// Uptime returns the fraction of results across the buffer that were
// healthy or degraded, in [0, 1]. An empty buffer reports 1.
func (h *History) Uptime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var up, total int
	for i := 0; i < h.count; i++ {
		rec := h.records[(h.start+i)%h.capacity]
		for _, r := range rec.Results {
			total++
			if r.Status != StatusUnhealthy {
				up++
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(up) / float64(total)
}

// AvgResponseTime returns the mean probe response time across the buffer.
func (h *History) AvgResponseTime() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sum time.Duration
	var n int
	for i := 0; i < h.count; i++ {
		rec := h.records[(h.start+i)%h.capacity]
		for _, r := range rec.Results {
			sum += r.ResponseTime
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// Trend compares the mean score of the last 5 cycles against the 5 before
// them: improving when the difference exceeds +5, declining below -5,
// stable otherwise (including when fewer than 10 cycles exist).
func (h *History) Trend() Trend {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < 10 {
		return TrendStable
	}
	recent := h.meanScore(h.count-5, h.count)
	prior := h.meanScore(h.count-10, h.count-5)
	diff := recent - prior
	switch {
	case diff > 5:
		return TrendImproving
	case diff < -5:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// meanScore averages cycle scores over [from, to). Caller holds the lock.
func (h *History) meanScore(from, to int) float64 {
	var sum float64
	for i := from; i < to; i++ {
		sum += float64(h.records[(h.start+i)%h.capacity].Score)
	}
	return sum / float64(to-from)
}
