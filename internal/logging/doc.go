// Package logging assembles structured slog loggers and formatting helpers used
// across taxosort.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, image keys, and stages. When a log directory is
// configured every record is also appended as JSON to taxosort.log. The
// package provides a no-op logger for tests and wiring code that cannot fail.
package logging
