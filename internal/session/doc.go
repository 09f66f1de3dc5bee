// Package session owns the per-peer session records and drives the engine.
//
// Each peer moves through Absent, Pending and Established. Pending lasts only
// while a handshake is running. Every engine call for a peer happens under
// that peer's lock; calls for different peers run in parallel.
//
// Records are cached in memory and written through to the record store from
// inside the engine's store_session callback. The callback path touches only
// the cache lock, so callbacks never contend for the peer lock held by the
// goroutine that invoked the engine.
package session
