// Package otel binds deviceauth engine metrics to OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per histogram bucket. A single callback reads
// [deviceauth.Engine.MetricsSnapshot] on each collection cycle. Callers own
// the MeterProvider.
package otel
