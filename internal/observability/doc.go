// Package observability builds the zap loggers and Prometheus collectors
// shared by the governance engine and its HTTP surface.
package observability
