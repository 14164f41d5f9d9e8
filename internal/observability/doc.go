// Package observability provides structured logging, metrics, and tracing
// for authgate.
//
// This package implements:
//   - Structured logging (zap-based)
//   - Prometheus metrics for gate decisions and session lookups
//   - OpenTelemetry spans around session lookups
//
// Metrics and tracing are nil-safe so components can run without them.
package observability
