// Package bridge assembles the full boundary around one engine instance:
// value dispatch, proxy registry, bigint codec, and lifetime
// coordination, behind a single Context.
//
// The engine runs on one loop goroutine owned by the Context. Do marshals
// work onto it from any goroutine; Eval, Call, Collect, and the
// conversion helpers are Do wrappers. Values returned by Eval and ToHost
// may be read from any goroutine, but operations that re-enter the engine
// through a live view must happen inside Do.
package bridge
