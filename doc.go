// Package jsbridge bridges a reference-counted host value model and a
// garbage-collected JavaScript engine compiled to WebAssembly.
//
// Values created in either runtime can be observed, mutated, and collected
// correctly from the other. Primitives are transcoded by copy; compound
// objects (mappings, sequences, generic objects) are shared by reference
// behind proxies so there is exactly one writable copy of the data.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	jsbridge/            Root package with Memory and Allocator interfaces
//	├── bridge/          Context: run loop, eval surface, lifecycle wiring
//	├── engine/          Engine surface: tags, refs, wazero-backed binding
//	├── dispatch/        Bidirectional value dispatcher
//	├── bigint/          Arbitrary-precision integer transcoding
//	├── proxy/           Shared-object proxy families and registry
//	├── anchor/          Cross-runtime lifetime coordination
//	├── hostval/         Host-side value model with explicit refcounts
//	├── enginetest/      In-memory Engine implementation for tests
//	└── errors/          Structured error types
//
// # Quick Start
//
// Load an engine build and evaluate source:
//
//	eng, err := engine.New(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := bridge.New(eng, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(ctx)
//
//	v, err := c.Eval(ctx, "1n << 70n", engine.EvalOptions{})
//	fmt.Println(v) // a hostval.Big
//
// # Ownership Model
//
// Every value has exactly one owning runtime. A wrapper in the other runtime
// never owns the payload; it holds a non-owning handle plus an anchor that
// keeps the owner's object alive while the wrapper is reachable. The anchor
// set is the only "lock" against collection in this system.
//
// # Thread Safety
//
// The engine context is not reentrant from multiple goroutines. All boundary
// crossings execute on the goroutine that owns the context; bridge.Context
// queues cross-goroutine work onto its run loop.
package jsbridge
