// Package config loads, normalizes, and validates grantfeed configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GRANTFEED_ACCESS_TOKEN. The Config type also derives the on-disk data
// layout (catalogue database, cache, release staging and record directories)
// so every stage resolves paths the same way.
package config
