package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rec(score int, statuses ...Status) CycleRecord {
	results := make([]CheckResult, len(statuses))
	for i, s := range statuses {
		results[i] = CheckResult{Service: "svc", Status: s, ResponseTime: 100 * time.Millisecond}
	}
	return CycleRecord{Timestamp: time.Now(), Score: score, Results: results}
}

func TestHistory_EvictsOldestWhenFull(t *testing.T) {
	h := NewHistory(3)
	for score := 1; score <= 5; score++ {
		h.Append(rec(score, StatusHealthy))
	}

	assert.Equal(t, 3, h.Len())

	got := h.Recent(0)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Score)
	assert.Equal(t, 4, got[1].Score)
	assert.Equal(t, 5, got[2].Score)
}

func TestHistory_RecentLimit(t *testing.T) {
	h := NewHistory(10)
	for score := 1; score <= 6; score++ {
		h.Append(rec(score, StatusHealthy))
	}

	got := h.Recent(2)
	assert.Len(t, got, 2)
	assert.Equal(t, 5, got[0].Score)
	assert.Equal(t, 6, got[1].Score)

	assert.Len(t, h.Recent(100), 6)
}

func TestHistory_Uptime(t *testing.T) {
	h := NewHistory(10)

	// Empty history reports full uptime.
	assert.Equal(t, 1.0, h.Uptime())

	h.Append(rec(100, StatusHealthy, StatusHealthy))
	h.Append(rec(50, StatusDegraded, StatusUnhealthy))

	// Degraded still counts as up; 3 of 4 results.
	assert.InDelta(t, 0.75, h.Uptime(), 0.001)
}

func TestHistory_AvgResponseTime(t *testing.T) {
	h := NewHistory(10)
	assert.Equal(t, time.Duration(0), h.AvgResponseTime())

	h.Append(CycleRecord{Results: []CheckResult{
		{ResponseTime: 100 * time.Millisecond},
		{ResponseTime: 300 * time.Millisecond},
	}})
	assert.Equal(t, 200*time.Millisecond, h.AvgResponseTime())
}

func TestHistory_Trend(t *testing.T) {
	t.Run("stable with fewer than 10 cycles", func(t *testing.T) {
		h := NewHistory(20)
		for i := 0; i < 9; i++ {
			h.Append(rec(100, StatusHealthy))
		}
		assert.Equal(t, TrendStable, h.Trend())
	})

	t.Run("improving", func(t *testing.T) {
		h := NewHistory(20)
		for i := 0; i < 5; i++ {
			h.Append(rec(50, StatusDegraded))
		}
		for i := 0; i < 5; i++ {
			h.Append(rec(100, StatusHealthy))
		}
		assert.Equal(t, TrendImproving, h.Trend())
	})

	t.Run("declining", func(t *testing.T) {
		h := NewHistory(20)
		for i := 0; i < 5; i++ {
			h.Append(rec(100, StatusHealthy))
		}
		for i := 0; i < 5; i++ {
			h.Append(rec(40, StatusUnhealthy))
		}
		assert.Equal(t, TrendDeclining, h.Trend())
	})

	t.Run("stable within the band", func(t *testing.T) {
		h := NewHistory(20)
		for i := 0; i < 5; i++ {
			h.Append(rec(95, StatusHealthy))
		}
		for i := 0; i < 5; i++ {
			h.Append(rec(100, StatusHealthy))
		}
		assert.Equal(t, TrendStable, h.Trend())
	})

	t.Run("windows follow the ring after eviction", func(t *testing.T) {
		h := NewHistory(10)
		for i := 0; i < 10; i++ {
			h.Append(rec(100, StatusHealthy))
		}
		// Push the buffer around: five low scores evict five highs.
		for i := 0; i < 5; i++ {
			h.Append(rec(40, StatusUnhealthy))
		}
		assert.Equal(t, TrendDeclining, h.Trend())
	})
}
