// Package pipeline sequences discovery, download, extraction, loading and
// publishing over one catalogue.
//
// Every stage reads its work from catalogue status and advances it forward
// only, so any command can be re-run after an interruption. A Runner holds
// an exclusive file lock for its lifetime once the first stage starts; a
// second invocation against the same data directory fails fast.
package pipeline
