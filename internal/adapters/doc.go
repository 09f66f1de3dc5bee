// Package adapters implements the engine's four callback stores on top of
// the key manager, the session cache and the record store, and registers them
// with a bridge.Registry.
//
// Adapters never call the engine. Handlers run synchronously inside an engine
// call, on the goroutine that made it, so they must not take the per-peer
// session lock.
package adapters
