// Package prometheus exposes goIssuer engine counters as a Prometheus
// collector.
//
// [Exporter] implements prometheus.Collector over Engine.MetricsSnapshot.
// Counters are named goissuer_*_total; the latency histogram is
// goissuer_validate_latency_seconds. [Exporter.Handler] serves a private
// registry, so nothing is registered globally.
package prometheus
