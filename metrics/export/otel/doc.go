// Package otel publishes ctxAuth engine metrics through an OpenTelemetry
// Meter.
//
// Counters become Int64ObservableCounters under their Prometheus names. Each
// histogram becomes a "<name>_bucket" gauge with one cumulative point per
// "le" attribute value plus a "<name>_count" gauge, so dashboards built on the
// Prometheus exporter read the same series. [WithAttributes] adds constant
// attributes to every point.
//
// One callback reads the engine snapshot per collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
