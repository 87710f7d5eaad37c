// Package otel publishes authflow engine metrics through OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each engine
// counter and an Int64ObservableGauge per histogram bucket. A single callback
// reads [authflow.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
