// Package engine defines the boundary between the bridge and a JavaScript
// engine build compiled to WebAssembly.
//
// The Engine interface is split by concern: Inspector classifies and reads
// values, ObjectOps manipulates objects and arrays, Constructor allocates
// engine values, BigIntOps covers arbitrary-precision integer construction,
// ProxyOps creates and identifies host-backed proxies, Lifetime pins values
// against collection, ErrorState manages the pending exception, and
// Evaluator runs scripts.
//
// WazeroEngine is the production implementation: it instantiates the engine
// wasm build under wazero, validates the exported ABI against a WIT-declared
// function surface, and registers a "jsbridge" host module whose imports
// deliver proxy traps back to the host.
//
// Engine values are addressed by Ref, an offset into the engine's linear
// memory. A Ref is only meaningful while the value it names is rooted:
// either still reachable on the engine side or pinned through Lifetime.
package engine
