// Package metrics records task lifecycle counters with OpenTelemetry.
//
// Recorder turns workflow events into counters and a duration histogram and
// exposes live gauges for the task summary. Collector owns an SDK meter
// provider backed by a manual reader so the daemon can serve a point-in-time
// snapshot over its HTTP API without an external exporter.
package metrics
