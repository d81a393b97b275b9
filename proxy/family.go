package proxy

import "github.com/Ciarands/jsbridge/hostval"

// Family identifies the engine-side behavior of a host-backed proxy. The
// engine dispatches its property traps by family, so the numbering is part
// of the engine ABI.
type Family uint32

const (
	// FamilyNone marks values that cross as callables or copies rather
	// than proxies.
	FamilyNone Family = 0

	// FamilyMapping proxies host mappings: string-keyed, mutable.
	FamilyMapping Family = 1

	// FamilySequence proxies host sequences: index-keyed, with a length.
	FamilySequence Family = 2

	// FamilyObject proxies generic host objects: attribute access without
	// mapping semantics.
	FamilyObject Family = 3
)

var familyNames = [...]string{
	FamilyNone:     "none",
	FamilyMapping:  "mapping",
	FamilySequence: "sequence",
	FamilyObject:   "object",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return "unknown"
}

// FamilyFor returns the proxy family for a host value, or FamilyNone when
// the value does not cross by reference. Tuples ride the sequence family
// with writes rejected at the trap layer.
func FamilyFor(v hostval.Value) Family {
	switch v.Kind() {
	case hostval.KindMap:
		return FamilyMapping
	case hostval.KindList, hostval.KindTuple:
		return FamilySequence
	case hostval.KindObject:
		return FamilyObject
	default:
		return FamilyNone
	}
}
