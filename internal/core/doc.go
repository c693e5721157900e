// Package core drives page I/O through the codec, standing in for the storage
// engine that normally owns it.
//
// Core operations include:
//   - Create: new database with a fresh salt and an empty page 1
//   - Open: attach to an existing database and check the key against page 1
//   - ReadPage/WritePage/AppendPage: whole-page I/O, encrypted on the way out
//   - Rekey: re-encrypt every page under a new key, atomically
//   - Verify/Diff: decrypt every page, compare two databases page by page
//   - Status: backend, page size, page count and database id without a key
//
// A DB serialises its own calls. The codec registry may be shared between
// DBs; each DB's store is a separate handle in it.
package core
