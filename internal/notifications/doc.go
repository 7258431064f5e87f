// Package notifications delivers pipeline events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Per-stage toggles in the [notifications]
// config section suppress individual event groups.
package notifications
