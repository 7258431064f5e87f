// Package catalogue persists releases, patents and images in SQLite and owns
// the forward-only state machine that makes every pipeline stage resumable.
//
// Releases move discovered → downloaded → extracted; images move
// pending → published. Nothing is ever deleted and no transition runs
// backwards, so re-running any stage against the same catalogue is safe.
// Rows are returned as named records built once in the scan helpers.
//
// Schema changes bump schemaVersion in schema.go.
package catalogue
