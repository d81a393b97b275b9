// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where in the boundary crossing the error
// occurred) and Kind (error category). The Error type includes rich context:
// field path, host/engine kind names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindConversion).
//		Path("items", "3").
//		EngineKind("bigint").
//		Detail("digit storage out of range").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Classification(errors.PhaseDecode, rendered)
//	err := errors.Unsupported(errors.PhaseDecode, "big-endian host")
//
// The taxonomy follows the bridge's failure model: classification misses are
// expected outcomes, conversion failures carry the underlying cause, and
// unsupported-configuration failures are fatal at the operation. All errors
// implement the standard error interface and support errors.Is/As.
package errors
