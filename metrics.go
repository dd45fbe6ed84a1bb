package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupFailure
	MetricSignupDuplicate
	MetricNotifyFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginUnverified
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReplay
	MetricLogout
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricValidateSuccess
	MetricValidateFailure
	MetricVerificationResent
	MetricVerificationResendSkipped
	MetricVerificationResendFailure
	MetricPasswordUpgraded
	MetricLoginLatency
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram slices
// hold non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics returns counters gated by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only latency IDs accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isHistogram(id) {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 2),
		HistogramSums: make(map[MetricID]time.Duration, 2),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricLoginLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
			s.HistogramSums[id] = time.Duration(atomic.LoadUint64(&m.histograms[id].sumNanos))
		}
	}
	return s
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

func isHistogram(id MetricID) bool {
	return id == MetricLoginLatency || id == MetricRefreshLatency
}

// bucketIndex maps d onto upper bounds of 10ms, 25ms, 50ms, 100ms, 250ms,
// 500ms, 1s and +Inf. Login latency is dominated by the password hash.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
