// Package main hosts the grantfeed CLI entrypoint and command graph.
//
// Each invocation runs one or more pipeline stages to completion against the
// catalogue under the configured data directory and then exits; scheduling is
// left to cron or a systemd timer. The stage commands (discover, fetch,
// extract, reconcile, publish, run) take the data directory lock, so
// overlapping invocations fail fast instead of interleaving.
//
// Command output goes to stdout. Structured logs go to stderr and to
// grantfeed.log in the log directory.
package main
