// Package prometheus exposes authcore engine metrics as a Prometheus
// collector.
//
// The collector reads an engine snapshot on every scrape, so registering it
// costs nothing between scrapes.
package prometheus
