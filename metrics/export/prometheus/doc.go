// Package prometheus exposes engine counters as a Prometheus collector.
// Nothing is registered globally; callers register the Collector in a
// registry they own and mount the handler themselves.
package prometheus
