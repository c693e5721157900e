// Package codec encrypts and decrypts the pages of a paged store.
//
// A Context holds the state for one attached database: the derived key, the
// 16-byte salt, and a scratch buffer exactly one page long. A Registry maps
// store handles to their contexts and is the entry point the page I/O path
// calls on every physical read (Decrypt) and write (Encrypt).
//
// On-disk layout:
//   - page 1, bytes 0-15: salt (cleartext)
//   - page 1, bytes 16-23: engine header (cleartext)
//   - page 1, bytes 24..: ciphertext, IV = DeriveIV(salt, 1)
//   - page N > 1: whole page ciphertext, IV = DeriveIV(salt, N)
//
// Return convention of Transform: Encrypt returns the context's scratch buffer
// and leaves the input untouched; Decrypt overwrites the input with plaintext
// and returns it. The scratch buffer is reused, so a Context must not be used
// by more than one goroutine at a time. Registry serialises calls per store.
package codec
