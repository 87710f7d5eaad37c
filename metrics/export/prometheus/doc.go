// Package prometheus renders authflow engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [authflow.Engine] and exposes an
// [http.Handler]. Counter names are prefixed authflow_*_total; the single
// histogram is authflow_provider_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
