// Package dispatch converts values between the runtimes in both
// directions.
//
// Conversion is exact-kind: each host kind and each engine tag has one
// mapping, primitives cross by copy, compounds cross by reference, and a
// value matching no mapping fails classification with the offending value
// rendered into the error. The Dispatcher also carries the engine's proxy
// traps, so property access on an engine-side proxy resolves against the
// original host storage.
//
// ToHostSafe is the variant for paths that must not fail, such as
// argument conversion inside an engine callback: it substitutes the host
// null for anything unconvertible and clears the engine's pending
// exception.
package dispatch
