// Package metrics provides lightweight, lock-minimal performance counters
// for the cache-and-durability core.
//
// Counters use sync/atomic so hot paths (command dispatch, cache hit/miss)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per command.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running engine instance.
// The zero value is valid and ready to use; prefer New() for clarity.
type Metrics struct {
	// Command counters
	CommandsTotal   atomic.Int64
	CommandsForward atomic.Int64

	// Cache counters (shared across whichever policy is active)
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
	Evictions   atomic.Int64

	// Durability counters
	AOFAppends     atomic.Int64
	AOFReplaySkips atomic.Int64
	SnapshotSaves  atomic.Int64
	SnapshotLoads  atomic.Int64

	// Pub/sub counters
	PubSubDeliveries atomic.Int64
	PubSubDropped    atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	hitMu   sync.Mutex
	hitStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordHitLatency records the duration of one cache-hit splice/promote.
func (m *Metrics) RecordHitLatency(d time.Duration) {
	m.hitMu.Lock()
	m.hitStat.record(float64(d.Microseconds()) / 1000.0)
	m.hitMu.Unlock()
}

// HitRatio returns hits / (hits + misses), or 0 if there have been no reads.
func (m *Metrics) HitRatio() float64 {
	hits := m.CacheHits.Load()
	misses := m.CacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.hitMu.Lock()
	hit := m.hitStat.snapshot()
	m.hitMu.Unlock()

	return Snapshot{
		Commands: CommandSnapshot{
			Total:     m.CommandsTotal.Load(),
			Forwarded: m.CommandsForward.Load(),
		},
		Cache: CacheSnapshot{
			Hits:      m.CacheHits.Load(),
			Misses:    m.CacheMisses.Load(),
			HitRatio:  round2(m.HitRatio()),
			Evictions: m.Evictions.Load(),
		},
		Durability: DurabilitySnapshot{
			AOFAppends:     m.AOFAppends.Load(),
			AOFReplaySkips: m.AOFReplaySkips.Load(),
			SnapshotSaves:  m.SnapshotSaves.Load(),
			SnapshotLoads:  m.SnapshotLoads.Load(),
		},
		PubSub: PubSubSnapshot{
			Delivered: m.PubSubDeliveries.Load(),
			Dropped:   m.PubSubDropped.Load(),
		},
		HitLatencyMs: hit,
		UptimeSecs:   time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Commands     CommandSnapshot    `json:"commands"`
	Cache        CacheSnapshot      `json:"cache"`
	Durability   DurabilitySnapshot `json:"durability"`
	PubSub       PubSubSnapshot     `json:"pubsub"`
	HitLatencyMs LatencySnapshot    `json:"hitLatencyMs"`
	UptimeSecs   float64            `json:"uptimeSecs"`
}

// CommandSnapshot holds command-level counters.
type CommandSnapshot struct {
	Total     int64 `json:"total"`
	Forwarded int64 `json:"forwarded"`
}

// CacheSnapshot holds cache-level counters.
type CacheSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRatio  float64 `json:"hitRatio"`
	Evictions int64   `json:"evictions"`
}

// DurabilitySnapshot holds AOF and snapshot counters.
type DurabilitySnapshot struct {
	AOFAppends     int64 `json:"aofAppends"`
	AOFReplaySkips int64 `json:"aofReplaySkips"`
	SnapshotSaves  int64 `json:"snapshotSaves"`
	SnapshotLoads  int64 `json:"snapshotLoads"`
}

// PubSubSnapshot holds broker delivery counters.
type PubSubSnapshot struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
