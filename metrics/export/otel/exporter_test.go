package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/authcore"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcore.MetricsSnapshot{
		Counters:      make(map[authcore.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[authcore.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[authcore.MetricID]time.Duration, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess: 3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[authcore.MetricID]time.Duration{
				authcore.MetricRefreshLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	login, ok := findMetric(rm, "authcore_login_success_total")
	if !ok {
		t.Fatal("login counter not collected")
	}
	sum, ok := login.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login counter data: %+v", login.Data)
	}

	count, ok := findMetric(rm, "authcore_refresh_latency_seconds_count")
	if !ok {
		t.Fatal("histogram count not collected")
	}
	gauge, ok := count.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 8 {
		t.Fatalf("unexpected histogram count: %+v", count.Data)
	}

	seconds, ok := findMetric(rm, "authcore_refresh_latency_seconds_sum")
	if !ok {
		t.Fatal("histogram sum not collected")
	}
	fg, ok := seconds.Data.(metricdata.Gauge[float64])
	if !ok || len(fg.DataPoints) != 1 || fg.DataPoints[0].Value != 1.5 {
		t.Fatalf("unexpected histogram sum: %+v", seconds.Data)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewExporterFromSource(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporter(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authcore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
