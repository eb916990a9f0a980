package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// LatencyTracker keeps a t-digest of request to answer latencies in
// milliseconds. Safe for concurrent use.
type LatencyTracker struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	max    time.Duration
}

func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{digest: tdigest.New()}
}

// Observe records one latency sample
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.digest.Add(float64(d)/float64(time.Millisecond), 1)
	l.max = max(l.max, d)
}

// Quantile returns the latency at q (0..1), or zero before any sample
func (l *LatencyTracker) Quantile(q float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.digest.Count() == 0 {
		return 0
	}
	return time.Duration(l.digest.Quantile(q) * float64(time.Millisecond))
}

// Count returns the number of samples
func (l *LatencyTracker) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(l.digest.Count())
}

// LatencySnapshot summarizes the tracker
type LatencySnapshot struct {
	Count uint64
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

func (l *LatencyTracker) Snapshot() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := LatencySnapshot{Count: uint64(l.digest.Count()), Max: l.max}
	if s.Count == 0 {
		return s
	}
	ms := func(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }
	s.P50 = ms(l.digest.Quantile(0.5))
	s.P90 = ms(l.digest.Quantile(0.9))
	s.P99 = ms(l.digest.Quantile(0.99))
	return s
}

// Reset drops all samples
func (l *LatencyTracker) Reset() {
	l.mu.Lock()
	l.digest = tdigest.New()
	l.max = 0
	l.mu.Unlock()
}
