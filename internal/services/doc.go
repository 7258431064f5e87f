// Package services defines the failure taxonomy and context helpers shared by
// every pipeline stage.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper so callers can tell a
//     retryable I/O failure from a bad record or an exhausted image queue.
//   - Context helpers that stamp release IDs, stage names, and correlation
//     identifiers for logging.
package services
