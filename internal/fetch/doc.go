// Package fetch downloads release archives into the local cache.
//
// Transfers stream into "<name>.tmp" and are renamed into place only after
// the byte count checks out and the file is synced, so a file at the final
// cache path is always complete. The release advances to downloaded only
// after the rename.
package fetch
