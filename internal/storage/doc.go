// Package storage provides paged stores that hold raw (encrypted) pages.
//
// Three backends implement Store:
//   - file: pages laid out back to back in one file, page N at (N-1)*page_size.
//     This is the on-disk format; the page size is read back from the
//     cleartext engine header in bytes 16-17 of page 1.
//   - bolt: a BBolt database with a config bucket (version, page_size,
//     timestamps) and a pages bucket keyed by big-endian page number.
//   - pebble: a Pebble directory with m/ metadata keys and p/ page keys.
//
// Every backend implements Rewrite, which replaces all pages atomically:
// the file backend through a synced temp file and rename, bolt in one write
// transaction, pebble in one synced batch. The codec relies on it for rekey.
//
// Stores know nothing about encryption. They are not safe for concurrent
// writers; callers serialise access.
package storage
