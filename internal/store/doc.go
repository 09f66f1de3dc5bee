// Package store provides the durable collaborators behind the store adapters.
//
// Every backend implements domain.RecordStore, a namespace/key map of opaque
// byte values:
//   - FileStore keeps one JSON document per namespace, written atomically
//   - SQLiteStore keeps a single records table
//   - MemoryStore keeps everything in process memory
//
// The local identity lives apart from the records in a domain.Vault. FileVault
// seals it with a scrypt-derived ChaCha20-Poly1305 key.
//
// All types are safe for concurrent use.
package store
