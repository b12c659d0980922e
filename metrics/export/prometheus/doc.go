// Package prometheus publishes deviceauth engine metrics through
// client_golang.
//
// [Exporter] implements prometheus.Collector on top of
// [deviceauth.Engine.MetricsSnapshot], so it can be registered with any
// registry. [Exporter.Handler] serves a dedicated registry via promhttp for
// callers that do not run their own. Counter names are prefixed
// deviceauth_*_total; the single histogram is
// deviceauth_validate_latency_seconds.
package prometheus
