package hostval

// Kind identifies a host value's concrete kind. The enum is closed: the
// dispatcher matches over it exhaustively, exact kinds before structural
// fallbacks, so classification is deterministic.
type Kind uint8

const (
	KindNone Kind = iota
	KindNull
	KindBool
	KindInt
	KindBig
	KindFloat
	KindString
	KindDate
	KindBuffer
	KindError
	KindPromise
	KindFunc
	KindMap
	KindList
	KindTuple
	KindObject
)

var kindNames = [...]string{
	KindNone:    "none",
	KindNull:    "null",
	KindBool:    "bool",
	KindInt:     "int",
	KindBig:     "big",
	KindFloat:   "float",
	KindString:  "string",
	KindDate:    "date",
	KindBuffer:  "buffer",
	KindError:   "error",
	KindPromise: "promise",
	KindFunc:    "func",
	KindMap:     "map",
	KindList:    "list",
	KindTuple:   "tuple",
	KindObject:  "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsPrimitive reports whether values of this kind cross the runtime boundary
// by copy. Compound kinds cross by reference behind a proxy.
func (k Kind) IsPrimitive() bool {
	return k <= KindError
}

// IsCompound reports whether values of this kind carry a reference count and
// identity that must be preserved across the boundary.
func (k Kind) IsCompound() bool {
	return !k.IsPrimitive()
}
