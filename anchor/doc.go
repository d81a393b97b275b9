// Package anchor coordinates object lifetimes across the runtime boundary.
//
// Neither collector can see the other's references. A host wrapper around
// an engine object keeps nothing alive from the engine collector's point
// of view, and an engine proxy around a host value is invisible to the
// host's reference counts. The Coordinator closes both gaps: engine refs
// held by host wrappers are pinned until the wrapper's count drops to
// zero, and host values memoized for identity-preserving encodes carry a
// table retain that a sweep drops once the table is their only holder.
//
// The sweep runs at engine collection start, so dead cross-boundary pairs
// are reclaimed in the same cycle that collects their engine side.
package anchor
