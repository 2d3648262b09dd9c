// Package prometheus exposes ctxAuth engine metrics as a
// prometheus.Collector.
//
// Counter names are prefixed ctxauth_*_total; the single histogram is
// ctxauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
