// Package otel publishes goIssuer engine counters through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// a cumulative bucket gauge per histogram, keyed by an "le" attribute. A
// single callback reads the engine snapshot on each collection. Callers own
// the MeterProvider.
package otel
