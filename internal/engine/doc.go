// Package engine is the session cipher: an X3DH handshake followed by a
// Double Ratchet, with every piece of persistent state reached through
// caller-supplied store vtables.
//
// The surface is deliberately flat. Operations take an Address, opaque record
// bytes and a Stores value, and return plain errors. Store callbacks return a
// Status code and write results through out-pointers, so a caller can back
// them with any dispatch mechanism it likes. Records and messages are opaque
// byte strings to the caller.
//
// Store callbacks are invoked synchronously on the calling goroutine. The
// engine never retains a Stores value past the call that received it.
package engine
