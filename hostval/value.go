package hostval

import (
	"math/big"
	"time"
)

// Value is a host-runtime value. Every value has exactly one owning runtime
// at construction time; host-owned values implement this interface directly,
// engine-owned values are exposed through wrappers that also implement it.
type Value interface {
	Kind() Kind
}

// None is the absent value (the engine's undefined maps here).
type None struct{}

func (None) Kind() Kind { return KindNone }

// Null is the explicit null value, distinct from None.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

type Bool bool

func (Bool) Kind() Kind { return KindBool }

// Int is a fixed-width machine integer.
type Int int64

func (Int) Kind() Kind { return KindInt }

type Float float64

func (Float) Kind() Kind { return KindFloat }

type String string

func (String) Kind() Kind { return KindString }

// Date carries a point in time with millisecond precision.
type Date struct {
	Time time.Time
}

func (Date) Kind() Kind { return KindDate }

// Buffer is raw byte storage.
type Buffer []byte

func (Buffer) Kind() Kind { return KindBuffer }

// Error carries an engine or host error as a value.
type Error struct {
	Message string
	Stack   string
}

func (*Error) Kind() Kind { return KindError }

func (e *Error) Error() string { return e.Message }

// Big is an arbitrary-precision integer. It is a kind distinct from Int so
// that a value received as arbitrary precision round-trips through the
// bigint codec instead of the machine-integer path.
type Big struct {
	Int *big.Int
}

func (*Big) Kind() Kind { return KindBig }

// NewBig wraps n without copying. The wrapper is freshly allocated on every
// call: two decodes of the same magnitude, including zero, never return the
// same *Big.
func NewBig(n *big.Int) *Big {
	return &Big{Int: n}
}

// NewBigZero returns a fresh canonical zero. The zero representation is a
// distinguished allocation, never aliased to a previously returned zero.
func NewBigZero() *Big {
	return &Big{Int: new(big.Int)}
}
