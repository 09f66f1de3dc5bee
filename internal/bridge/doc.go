// Package bridge routes engine store callbacks to Go handlers through a
// registry of numeric callback IDs.
//
// The engine only ever sees four fixed single-parameter thunks, one per
// operation family (session, identity, prekey, signed prekey). Each engine
// vtable field is a package-level shim that packs its arguments into a
// Params bundle, pins it, and hands the thunk the pin handle. The thunk
// resolves the handle and the callback ID, runs the handler, and returns a
// status. Arguments and results therefore never cross the boundary as more
// than one scalar.
//
// A CallContext is pinned for the duration of one engine invocation. Its
// handle is the Ctx value stored in every vtable, and handlers reach it
// through Params.Call to stage side effects such as prekey removal.
//
// Callbacks run synchronously on the goroutine that called the engine. The
// registry lock is never held while a handler runs, so handlers may re-enter
// the registry.
package bridge
