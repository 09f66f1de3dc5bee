// Package main runs the sigbridge prekey directory.
//
// HTTP API
//
//	PUT /v1/keys/{name}/{device}
//	    Store the PublishedKeys for an address. The signed prekey signature
//	    is checked against the identity key before anything is stored.
//	    One-time keys already handed out under the same identity key are
//	    not stocked again.
//
//	GET /v1/keys/{name}/{device}
//	    Return a PreKeyBundle carrying at most one one-time prekey. That key
//	    is removed so no two fetches receive the same one.
//
//	GET /v1/keys/{name}/{device}/count
//	    Return {"count": N}, the one-time prekeys left.
//
//	DELETE /v1/keys/{name}/{device}
//	    Remove the address.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Errors carry {"error": "..."}.
//   - Every request is logged with method, path, remote, status, bytes
//     and duration.
//
// The directory never sees plaintext or private keys; it only stores public
// bundles.
package main
