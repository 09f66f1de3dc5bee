// Package protocol is the application-facing façade over the key manager,
// the session manager and an optional prekey directory.
//
// Callers deal only in addresses, bundles and bytes. Every error returned
// is a *domain.ProtocolError classified into the domain taxonomy.
package protocol
