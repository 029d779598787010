// Package observability provides the pipeline event log, metrics derived
// from it, threshold alerting, Prometheus collectors and the zap logger
// setup. Events are persisted as JSON Lines and metrics are computed on
// demand from the log.
package observability
