// Package hostval defines the host runtime's value model.
//
// Host values are a closed tagged union over Kind. Primitives (none, null,
// bool, int, big, float, string, date, buffer, error) cross the runtime
// boundary by copy. Compounds (map, list, tuple, object, func, promise) are
// pointer types whose Go pointer identity is their value identity; they
// cross by reference behind proxies and carry an explicit reference count.
//
// The reference count models cross-runtime ownership, not Go lifetimes: the
// bridge retains a compound while any engine-side wrapper can still reach
// it, and the count hitting zero runs release hooks that drop engine pins.
// This makes the ownership relation testable without either collector
// running.
//
// Big is deliberately a kind distinct from Int. A value decoded from the
// engine's arbitrary-precision integers must re-enter the bigint codec on
// the way back, which the machine-integer path would not do.
package hostval
