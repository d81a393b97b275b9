package engine

import (
	"context"

	jsbridge "github.com/Ciarands/jsbridge"
)

// Ref is a reference to an engine value: a guest pointer into the engine's
// linear memory. Ref 0 is reserved and always invalid.
type Ref uint32

// Tag is the engine-level type tag of a value.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagNumber
	TagString
	TagSymbol
	TagBigInt
	TagObject
)

var tagNames = [...]string{
	TagUndefined: "undefined",
	TagNull:      "null",
	TagBool:      "bool",
	TagNumber:    "number",
	TagString:    "string",
	TagSymbol:    "symbol",
	TagBigInt:    "bigint",
	TagObject:    "object",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// Class is the builtin class of an object-tagged value.
type Class uint8

const (
	ClassPlain Class = iota
	ClassBoolean
	ClassNumber
	ClassString
	ClassBigInt
	ClassDate
	ClassPromise
	ClassError
	ClassFunction
	ClassArray
	ClassArrayBuffer
	ClassProxy
	ClassOther
)

var classNames = [...]string{
	ClassPlain:       "plain",
	ClassBoolean:     "boolean",
	ClassNumber:      "number",
	ClassString:      "string",
	ClassBigInt:      "bigint",
	ClassDate:        "date",
	ClassPromise:     "promise",
	ClassError:       "error",
	ClassFunction:    "function",
	ClassArray:       "array",
	ClassArrayBuffer: "array-buffer",
	ClassProxy:       "proxy",
	ClassOther:       "other",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// Inspector classifies and extracts engine values.
type Inspector interface {
	// TypeTag returns the engine-level tag of the value.
	TypeTag(Ref) (Tag, error)

	// BuiltinClass returns the builtin class of an object-tagged value.
	BuiltinClass(Ref) (Class, error)

	// Unbox returns the primitive inside a boxed Boolean/Number/String/BigInt.
	Unbox(Ref) (Ref, error)

	ToBool(Ref) (bool, error)
	ToNumber(Ref) (float64, error)

	// ToString is the engine's own string conversion, usable on any value.
	// Classification errors embed its result.
	ToString(Ref) (string, error)

	// StringValue returns the exact payload of a string-tagged value.
	StringValue(Ref) (string, error)

	// DateEpochMs returns a Date object's epoch milliseconds.
	DateEpochMs(Ref) (float64, error)
}

// ObjectOps is the engine object protocol.
type ObjectOps interface {
	Get(obj Ref, key string) (Ref, error)
	Set(obj Ref, key string, v Ref) error
	Has(obj Ref, key string) (bool, error)
	Delete(obj Ref, key string) error
	OwnKeys(obj Ref) ([]string, error)

	GetIndex(obj Ref, i uint32) (Ref, error)
	SetIndex(obj Ref, i uint32, v Ref) error
	Length(obj Ref) (uint32, error)

	// Call invokes fn with this and args. A pending engine exception after
	// the call surfaces through the error state, not the returned Ref.
	Call(fn, this Ref, args []Ref) (Ref, error)

	// Await drives engine jobs until the promise settles and returns the
	// settled value, or an error for rejection.
	Await(promise Ref) (Ref, error)
}

// Constructor builds engine values from host data.
type Constructor interface {
	Undefined() (Ref, error)
	Null() (Ref, error)
	NewBool(bool) (Ref, error)
	NewNumber(float64) (Ref, error)
	NewString(string) (Ref, error)
	NewObject() (Ref, error)
	NewArray(length uint32) (Ref, error)
	NewDate(epochMs float64) (Ref, error)
	NewError(msg string) (Ref, error)
	NewArrayBuffer([]byte) (Ref, error)
}

// BigIntOps constructs engine arbitrary-precision integers. The engine
// exposes no public byte-buffer constructor; the slow path goes through a
// base-16 string parse and the fast path through a single native digit.
type BigIntOps interface {
	// ParseBigIntHex parses uppercase hex digits as a non-negative bigint.
	// The span must not include a terminator.
	ParseBigIntHex(hexDigits string) (Ref, error)

	// BigIntFromUint64 constructs a bigint from a single unsigned digit.
	BigIntFromUint64(uint64) (Ref, error)
}

// ProxyOps creates and inspects engine-side proxies for host objects, and
// the engine-reserved slot that marks natively wrapped host callables.
type ProxyOps interface {
	// NewHostProxy creates an engine proxy whose protocol traps forward to
	// the host object identified by (family, handle).
	NewHostProxy(family, handle uint32) (Ref, error)

	// ProxyTarget reports whether ref is one of our host proxies, and if so
	// its family identifier and host handle. O(1), content-independent.
	ProxyTarget(ref Ref) (family, handle uint32, ok bool, err error)

	// NewHostFunc creates an engine function whose reserved slot carries the
	// host callable's handle.
	NewHostFunc(handle uint32, name string) (Ref, error)

	// HostFuncHandle recovers the reserved-slot handle from a function
	// created by NewHostFunc. ok is false for genuine engine functions.
	HostFuncHandle(ref Ref) (handle uint32, ok bool, err error)
}

// Lifetime manages persistent roots and collection.
type Lifetime interface {
	// Pin registers ref as a persistent root so the engine's collector
	// cannot reclaim it while the host still references it.
	Pin(Ref) error

	// Unpin drops a persistent root registered by Pin.
	Unpin(Ref) error

	// GC requests a full engine collection.
	GC() error

	// OnGCStart registers a callback fired when an engine collection
	// begins. Used by the lifetime coordinator's sweep.
	OnGCStart(func())
}

// ErrorState exposes the engine's pending-exception slot.
type ErrorState interface {
	Pending() bool

	// TakeError clears and returns the pending exception.
	TakeError() (Ref, bool)

	Clear()

	// Throw sets the pending exception to a new error with msg.
	Throw(msg string) error
}

// EvalOptions mirror the original evaluator's option surface.
type EvalOptions struct {
	Filename string
	Line     uint32
	Strict   bool
}

// Evaluator compiles and runs source in the engine context.
type Evaluator interface {
	Eval(source string, opts EvalOptions) (Ref, error)

	// IsCompilableUnit hints whether source might be a complete script.
	IsCompilableUnit(source string) (bool, error)
}

// Hooks are the host-side trap handlers the guest invokes for proxy
// operations and host-callable invocation. All refs passed in are engine
// values; all refs returned must be engine values (0 signals failure with
// the engine error state set by the hook via Throw).
type Hooks interface {
	ProxyGet(family, handle uint32, key Ref) Ref
	ProxySet(family, handle uint32, key, val Ref) bool
	ProxyHas(family, handle uint32, key Ref) bool
	ProxyDelete(family, handle uint32, key Ref) bool
	ProxyKeys(family, handle uint32) Ref
	ProxyCall(handle uint32, this Ref, args []Ref) Ref
	HostCall(handle uint32, args []Ref) Ref

	// ProxyFinalized fires when the engine's collector reclaims a host
	// proxy; the host releases its retain on the target.
	ProxyFinalized(handle uint32)
}

// Engine is the complete surface the bridge needs from the embedded engine.
// The engine context is not reentrant: all methods must be called from the
// goroutine that owns the context. Operations are synchronous and
// non-cancellable, so methods do not take a context; Close does, for the
// underlying wasm runtime teardown.
type Engine interface {
	Inspector
	ObjectOps
	Constructor
	BigIntOps
	ProxyOps
	Lifetime
	ErrorState
	Evaluator

	// Memory exposes the engine's linear memory. The bigint codec reads
	// value cells from it directly.
	Memory() jsbridge.Memory

	// ABIVersion identifies the engine build's internal value layout.
	ABIVersion() string

	// SetHooks installs the host-side trap handlers. Must be called before
	// any proxy is created.
	SetHooks(Hooks)

	Close(ctx context.Context) error
}
