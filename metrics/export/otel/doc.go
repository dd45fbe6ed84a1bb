// Package otel publishes authcore engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// per latency histogram, one Int64ObservableGauge per cumulative bucket plus
// count and sum gauges. A single callback reads the engine snapshot on each
// collection. Callers own the MeterProvider.
package otel
