// Package proxy carries compound values across the boundary by reference
// instead of by copy.
//
// Host to engine: the Registry hands out a handle per host value, the
// engine builds a proxy carrying that handle, and every property access
// traps back through the handle to the one underlying store. Engine to
// host: EngineObject, EngineArray, and EngineFunc wrap an engine ref and
// forward each operation to it. In both directions a mutation made in one
// runtime is immediately visible in the other, and sending the same value
// twice yields the same identity on the far side.
//
// The Converter interface is implemented by the dispatch layer and
// injected here, keeping the forwarding wrappers free of a dependency on
// conversion itself.
package proxy
