package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Collector implements prometheus.Collector over an engine.
type Collector struct {
	source       metricsSource
	counters     []*prom.Desc
	histograms   []*prom.Desc
	auditDropped *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector reads from engine.
func NewCollector(engine *authcore.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource reads metrics from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms:   make([]*prom.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(c.counters[i], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for j, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[j]
		}
		count := cumulative[internaldefs.BucketCount-1]
		sum := snapshot.HistogramSums[def.ID].Seconds()
		ch <- prom.MustNewConstHistogram(c.histograms[i], count, sum, buckets)
	}

	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(c.source.AuditDropped()))
}

// Handler registers the collector on a fresh registry and serves it.
func Handler(c *Collector) (http.Handler, error) {
	registry := prom.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
