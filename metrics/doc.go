// Package metrics records store and adapter measurements with
// OpenTelemetry and exposes them in the Prometheus text format.
package metrics
