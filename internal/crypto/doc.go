// Package crypto provides the cryptographic primitives of the page codec.
//
// Encryption uses AES-256 in CFB mode with:
//   - 32-byte key taken from a hex literal or a single digest pass over a passphrase
//   - per-page IV derived as Digest(salt || page number), never stored on disk
//   - no padding, so a page encrypts to exactly its own length
//
// Key derivation performs no stretching. A passphrase is hashed once; this keeps
// keys compatible with existing files and is a known weakness.
//
// Pages are not authenticated. A flipped ciphertext bit decrypts to garbage
// that this package cannot detect.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
package crypto
