// Package logging assembles structured slog loggers and formatting helpers used
// across grantfeed.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code tags log lines
// with release IDs, stage names and the per-invocation correlation ID. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
