// Package directory is the prekey directory that peers publish bundles to
// and fetch bundles from.
//
// It offers three implementations of domain.Directory:
//   - Memory, an in-process directory used by tests and by the server.
//   - Client, a JSON-over-HTTP client for a remote directory.
//   - Server, an http.Handler exposing a Memory (or any Backend).
//
// HTTP API
//
//	PUT    /v1/keys/{name}/{device}        upload domain.PublishedKeys
//	GET    /v1/keys/{name}/{device}        fetch a bundle, popping one one-time key
//	GET    /v1/keys/{name}/{device}/count  remaining one-time keys
//	DELETE /v1/keys/{name}/{device}        remove the entry
//
// The directory only ever sees public key material. Non-2xx responses are
// returned by the client as errors carrying the method, path and status.
package directory
