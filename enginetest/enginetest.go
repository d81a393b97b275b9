// Package enginetest provides an in-process engine.Engine for tests. It
// keeps values in a side table addressed by refs into a synthetic linear
// memory, and lays out real bigint cells in that memory so the decoding
// path under test reads the same representation a wasm engine build would
// produce.
package enginetest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	jsbridge "github.com/Ciarands/jsbridge"
	"github.com/Ciarands/jsbridge/bigint"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
)

type val struct {
	tag   engine.Tag
	class engine.Class

	b   bool
	num float64
	str string
	buf []byte

	props map[string]engine.Ref
	keys  []string
	arr   []engine.Ref

	boxed engine.Ref

	family uint32
	handle uint32

	funcHandle uint32
	funcName   string
	native     func(this engine.Ref, args []engine.Ref) (engine.Ref, error)

	settled   engine.Ref
	rejectMsg string
}

// Engine is the fake. Zero value is not usable; construct with New.
type Engine struct {
	mem  []byte
	next uint32
	vals map[engine.Ref]*val

	pins    map[engine.Ref]int
	hooks   engine.Hooks
	gcStart []func()

	pending engine.Ref
	scripts map[string]func() (engine.Ref, error)

	undefined engine.Ref
	null      engine.Ref

	abi       string
	Finalized []uint32
}

func New() *Engine {
	e := &Engine{
		mem:     make([]byte, 1<<16),
		next:    16,
		vals:    make(map[engine.Ref]*val),
		pins:    make(map[engine.Ref]int),
		scripts: make(map[string]func() (engine.Ref, error)),
		abi:     engine.ABIVersionSupported,
	}
	e.undefined = e.add(&val{tag: engine.TagUndefined})
	e.null = e.add(&val{tag: engine.TagNull})
	return e
}

func (e *Engine) alloc(n uint32) uint32 {
	at := e.next
	e.next += (n + 7) &^ 7
	for uint64(e.next) > uint64(len(e.mem)) {
		e.mem = append(e.mem, make([]byte, len(e.mem))...)
	}
	return at
}

func (e *Engine) add(v *val) engine.Ref {
	ref := engine.Ref(e.alloc(8))
	e.vals[ref] = v
	return ref
}

// Alloc reserves a scratch region in the synthetic memory, mirroring the
// real engine's heap exports.
func (e *Engine) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	return e.alloc(size), nil
}

// Free is a no-op: the synthetic memory is a bump allocator.
func (e *Engine) Free(ptr uint32) {}

func (e *Engine) get(ref engine.Ref) (*val, error) {
	v, ok := e.vals[ref]
	if !ok {
		return nil, errors.InvalidRef(errors.PhaseDecode,
			fmt.Sprintf("no value at ref %d", ref))
	}
	return v, nil
}

// Test helpers

// NewSymbol creates a symbol value, which no host kind accepts.
func (e *Engine) NewSymbol(desc string) engine.Ref {
	return e.add(&val{tag: engine.TagSymbol, str: desc})
}

// NewNativeFunc creates an engine-side function backed by fn.
func (e *Engine) NewNativeFunc(fn func(this engine.Ref, args []engine.Ref) (engine.Ref, error)) engine.Ref {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassFunction, native: fn})
}

// NewBoxed creates a box object whose Unbox yields inner.
func (e *Engine) NewBoxed(class engine.Class, inner engine.Ref) engine.Ref {
	return e.add(&val{tag: engine.TagObject, class: class, boxed: inner})
}

// NewSettledPromise creates a promise already settled with v.
func (e *Engine) NewSettledPromise(v engine.Ref) engine.Ref {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassPromise, settled: v})
}

// NewRejectedPromise creates a promise that rejects with msg on await.
func (e *Engine) NewRejectedPromise(msg string) engine.Ref {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassPromise, rejectMsg: msg})
}

// AddScript binds source text to a result for Eval.
func (e *Engine) AddScript(source string, run func() (engine.Ref, error)) {
	e.scripts[source] = run
}

// SetABIVersion overrides the reported ABI version.
func (e *Engine) SetABIVersion(v string) { e.abi = v }

// PinCount reports the pin count of ref.
func (e *Engine) PinCount(ref engine.Ref) int { return e.pins[ref] }

// Inspector

func (e *Engine) TypeTag(ref engine.Ref) (engine.Tag, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, err
	}
	return v.tag, nil
}

func (e *Engine) BuiltinClass(ref engine.Ref) (engine.Class, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, err
	}
	return v.class, nil
}

func (e *Engine) Unbox(ref engine.Ref) (engine.Ref, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, err
	}
	if v.boxed == 0 {
		return 0, errors.InvalidInput(errors.PhaseDecode, "value is not a box")
	}
	return v.boxed, nil
}

func (e *Engine) ToBool(ref engine.Ref) (bool, error) {
	v, err := e.get(ref)
	if err != nil {
		return false, err
	}
	switch v.tag {
	case engine.TagUndefined, engine.TagNull:
		return false, nil
	case engine.TagBool:
		return v.b, nil
	case engine.TagNumber:
		return v.num != 0 && !math.IsNaN(v.num), nil
	case engine.TagString:
		return v.str != "", nil
	default:
		return true, nil
	}
}

func (e *Engine) ToNumber(ref engine.Ref) (float64, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, err
	}
	switch v.tag {
	case engine.TagNumber:
		return v.num, nil
	case engine.TagBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return math.NaN(), nil
	}
}

func (e *Engine) ToString(ref engine.Ref) (string, error) {
	v, err := e.get(ref)
	if err != nil {
		return "", err
	}
	switch v.tag {
	case engine.TagUndefined:
		return "undefined", nil
	case engine.TagNull:
		return "null", nil
	case engine.TagBool:
		return strconv.FormatBool(v.b), nil
	case engine.TagNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64), nil
	case engine.TagString:
		return v.str, nil
	case engine.TagSymbol:
		return "Symbol(" + v.str + ")", nil
	case engine.TagBigInt:
		c := bigint.NewCodec(bigint.DefaultLayout, nil)
		n, derr := c.Decode(e.Memory(), ref)
		if derr != nil {
			return "", derr
		}
		return n.Int.String(), nil
	default:
		switch v.class {
		case engine.ClassError:
			return "Error: " + v.str, nil
		case engine.ClassFunction:
			return "function " + v.funcName + "() { [native code] }", nil
		default:
			return "[object Object]", nil
		}
	}
}

func (e *Engine) StringValue(ref engine.Ref) (string, error) {
	v, err := e.get(ref)
	if err != nil {
		return "", err
	}
	return v.str, nil
}

func (e *Engine) DateEpochMs(ref engine.Ref) (float64, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, err
	}
	return v.num, nil
}

// ObjectOps. Operations on host proxies route through the installed
// hooks, the way an engine build's proxy traps would.

func (e *Engine) Get(obj engine.Ref, key string) (engine.Ref, error) {
	v, err := e.get(obj)
	if err != nil {
		return 0, err
	}
	if v.family != 0 {
		kr, _ := e.NewString(key)
		out := e.hooks.ProxyGet(v.family, v.handle, kr)
		return out, e.trapErr(out != 0)
	}
	r, ok := v.props[key]
	if !ok {
		return e.undefined, nil
	}
	return r, nil
}

func (e *Engine) Set(obj engine.Ref, key string, value engine.Ref) error {
	v, err := e.get(obj)
	if err != nil {
		return err
	}
	if v.family != 0 {
		kr, _ := e.NewString(key)
		return e.trapErr(e.hooks.ProxySet(v.family, v.handle, kr, value))
	}
	if v.props == nil {
		v.props = make(map[string]engine.Ref)
	}
	if _, ok := v.props[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.props[key] = value
	return nil
}

func (e *Engine) Has(obj engine.Ref, key string) (bool, error) {
	v, err := e.get(obj)
	if err != nil {
		return false, err
	}
	if v.family != 0 {
		kr, _ := e.NewString(key)
		return e.hooks.ProxyHas(v.family, v.handle, kr), nil
	}
	_, ok := v.props[key]
	return ok, nil
}

func (e *Engine) Delete(obj engine.Ref, key string) error {
	v, err := e.get(obj)
	if err != nil {
		return err
	}
	if v.family != 0 {
		kr, _ := e.NewString(key)
		return e.trapErr(e.hooks.ProxyDelete(v.family, v.handle, kr))
	}
	if _, ok := v.props[key]; ok {
		delete(v.props, key)
		for i, k := range v.keys {
			if k == key {
				v.keys = append(v.keys[:i], v.keys[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (e *Engine) OwnKeys(obj engine.Ref) ([]string, error) {
	v, err := e.get(obj)
	if err != nil {
		return nil, err
	}
	if v.family != 0 {
		arr := e.hooks.ProxyKeys(v.family, v.handle)
		if arr == 0 {
			return nil, e.trapErr(false)
		}
		n, _ := e.Length(arr)
		keys := make([]string, n)
		for i := uint32(0); i < n; i++ {
			kr, _ := e.GetIndex(arr, i)
			keys[i], _ = e.StringValue(kr)
		}
		return keys, nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out, nil
}

func (e *Engine) GetIndex(obj engine.Ref, i uint32) (engine.Ref, error) {
	v, err := e.get(obj)
	if err != nil {
		return 0, err
	}
	if v.family != 0 {
		kr, _ := e.NewString(strconv.Itoa(int(i)))
		out := e.hooks.ProxyGet(v.family, v.handle, kr)
		return out, e.trapErr(out != 0)
	}
	if i >= uint32(len(v.arr)) {
		return e.undefined, nil
	}
	return v.arr[i], nil
}

func (e *Engine) SetIndex(obj engine.Ref, i uint32, value engine.Ref) error {
	v, err := e.get(obj)
	if err != nil {
		return err
	}
	if v.family != 0 {
		kr, _ := e.NewString(strconv.Itoa(int(i)))
		return e.trapErr(e.hooks.ProxySet(v.family, v.handle, kr, value))
	}
	for uint32(len(v.arr)) <= i {
		v.arr = append(v.arr, e.undefined)
	}
	v.arr[i] = value
	return nil
}

func (e *Engine) Length(obj engine.Ref) (uint32, error) {
	v, err := e.get(obj)
	if err != nil {
		return 0, err
	}
	if v.family != 0 {
		kr, _ := e.NewString("length")
		out := e.hooks.ProxyGet(v.family, v.handle, kr)
		if out == 0 {
			return 0, e.trapErr(false)
		}
		n, nerr := e.ToNumber(out)
		return uint32(n), nerr
	}
	return uint32(len(v.arr)), nil
}

func (e *Engine) Call(fn, this engine.Ref, args []engine.Ref) (engine.Ref, error) {
	v, err := e.get(fn)
	if err != nil {
		return 0, err
	}
	switch {
	case v.funcHandle != 0:
		out := e.hooks.HostCall(v.funcHandle, args)
		return out, e.trapErr(out != 0)
	case v.native != nil:
		return v.native(this, args)
	default:
		return 0, errors.InvalidInput(errors.PhaseCall, "ref is not callable")
	}
}

func (e *Engine) Await(p engine.Ref) (engine.Ref, error) {
	v, err := e.get(p)
	if err != nil {
		return 0, err
	}
	if v.rejectMsg != "" {
		_ = e.Throw(v.rejectMsg)
		return 0, errors.Engine(errors.PhaseCall, v.rejectMsg, nil)
	}
	return v.settled, nil
}

// trapErr converts a trap's rejection into the pending exception, or nil
// when the trap succeeded.
func (e *Engine) trapErr(ok bool) error {
	if ok {
		return nil
	}
	if e.pending != 0 {
		msg, _ := e.ToString(e.pending)
		return errors.Engine(errors.PhaseCall, msg, nil)
	}
	return errors.Engine(errors.PhaseCall, "trap rejected", nil)
}

// Constructor

func (e *Engine) Undefined() (engine.Ref, error) { return e.undefined, nil }
func (e *Engine) Null() (engine.Ref, error)      { return e.null, nil }

func (e *Engine) NewBool(b bool) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagBool, b: b}), nil
}

func (e *Engine) NewNumber(f float64) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagNumber, num: f}), nil
}

func (e *Engine) NewString(s string) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagString, str: s}), nil
}

func (e *Engine) NewObject() (engine.Ref, error) {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassPlain,
		props: make(map[string]engine.Ref)}), nil
}

func (e *Engine) NewArray(length uint32) (engine.Ref, error) {
	arr := make([]engine.Ref, length)
	for i := range arr {
		arr[i] = e.undefined
	}
	return e.add(&val{tag: engine.TagObject, class: engine.ClassArray, arr: arr}), nil
}

func (e *Engine) NewDate(epochMs float64) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassDate, num: epochMs}), nil
}

func (e *Engine) NewError(msg string) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassError, str: msg}), nil
}

func (e *Engine) NewArrayBuffer(data []byte) (engine.Ref, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	return e.add(&val{tag: engine.TagObject, class: engine.ClassArrayBuffer, buf: buf}), nil
}

// BigIntOps. Cells are written into linear memory per the default layout
// so decodes exercise the real memory path.

func (e *Engine) materializeBigInt(n *big.Int) (engine.Ref, error) {
	l := bigint.DefaultLayout
	digitCount := uint32((n.BitLen() + 63) / 64)
	if digitCount == 0 {
		digitCount = 1
	}
	be := make([]byte, digitCount*l.DigitBytes)
	n.FillBytes(be)

	cell := e.alloc(l.HeaderSize + l.DigitBytes)
	binary.LittleEndian.PutUint32(e.mem[cell+l.FlagsOffset:], 0)
	binary.LittleEndian.PutUint32(e.mem[cell+l.CountOffset:], digitCount)

	base := cell + l.DigitsOffset
	if digitCount > l.InlineMaxDigits {
		heap := e.alloc(digitCount * l.DigitBytes)
		binary.LittleEndian.PutUint32(e.mem[base:], heap)
		base = heap
	}
	for i := 0; i < len(be); i++ {
		e.mem[base+uint32(len(be)-1-i)] = be[i]
	}

	ref := engine.Ref(cell)
	e.vals[ref] = &val{tag: engine.TagBigInt}
	return ref, nil
}

func (e *Engine) ParseBigIntHex(hexDigits string) (engine.Ref, error) {
	n, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		return 0, errors.InvalidInput(errors.PhaseEncode, "bad hex "+strconv.Quote(hexDigits))
	}
	return e.materializeBigInt(n)
}

func (e *Engine) BigIntFromUint64(u uint64) (engine.Ref, error) {
	return e.materializeBigInt(new(big.Int).SetUint64(u))
}

// ProxyOps

func (e *Engine) NewHostProxy(family, handle uint32) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassProxy,
		family: family, handle: handle}), nil
}

func (e *Engine) ProxyTarget(ref engine.Ref) (uint32, uint32, bool, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, 0, false, err
	}
	if v.family == 0 {
		return 0, 0, false, nil
	}
	return v.family, v.handle, true, nil
}

func (e *Engine) NewHostFunc(handle uint32, name string) (engine.Ref, error) {
	return e.add(&val{tag: engine.TagObject, class: engine.ClassFunction,
		funcHandle: handle, funcName: name}), nil
}

func (e *Engine) HostFuncHandle(ref engine.Ref) (uint32, bool, error) {
	v, err := e.get(ref)
	if err != nil {
		return 0, false, err
	}
	return v.funcHandle, v.funcHandle != 0, nil
}

// Lifetime

func (e *Engine) Pin(ref engine.Ref) error {
	if _, err := e.get(ref); err != nil {
		return err
	}
	e.pins[ref]++
	return nil
}

func (e *Engine) Unpin(ref engine.Ref) error {
	if e.pins[ref] > 0 {
		e.pins[ref]--
	}
	return nil
}

// GC runs collection-start callbacks, then finalizes unpinned host
// proxies the way an engine collector would, notifying the hooks.
func (e *Engine) GC() error {
	for _, cb := range e.gcStart {
		cb()
	}
	for ref, v := range e.vals {
		if v.family != 0 && e.pins[ref] == 0 {
			e.Finalized = append(e.Finalized, v.handle)
			if e.hooks != nil {
				e.hooks.ProxyFinalized(v.handle)
			}
			delete(e.vals, ref)
		}
	}
	return nil
}

func (e *Engine) OnGCStart(cb func()) {
	e.gcStart = append(e.gcStart, cb)
}

// ErrorState

func (e *Engine) Pending() bool { return e.pending != 0 }

func (e *Engine) TakeError() (engine.Ref, bool) {
	if e.pending == 0 {
		return 0, false
	}
	p := e.pending
	e.pending = 0
	return p, true
}

func (e *Engine) Clear() { e.pending = 0 }

func (e *Engine) Throw(msg string) error {
	ref, err := e.NewError(msg)
	if err != nil {
		return err
	}
	e.pending = ref
	return nil
}

// Evaluator. Scripts are either registered with AddScript or simple
// literals: numbers and single-quoted strings evaluate directly.

func (e *Engine) Eval(source string, opts engine.EvalOptions) (engine.Ref, error) {
	if run, ok := e.scripts[source]; ok {
		return run()
	}
	src := strings.TrimSpace(source)
	if f, err := strconv.ParseFloat(src, 64); err == nil {
		return e.NewNumber(f)
	}
	if len(src) >= 2 && src[0] == '\'' && src[len(src)-1] == '\'' {
		return e.NewString(src[1 : len(src)-1])
	}
	_ = e.Throw("SyntaxError: unknown script")
	return 0, errors.Engine(errors.PhaseEval, "unknown script "+strconv.Quote(source), nil)
}

func (e *Engine) IsCompilableUnit(source string) (bool, error) {
	depth := 0
	for _, r := range source {
		switch r {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		}
	}
	return depth <= 0, nil
}

// Memory

type memAdapter struct {
	e *Engine
}

func (m memAdapter) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.e.mem)) {
		return errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), len(m.e.mem))
	}
	return nil
}

func (m memAdapter) Read(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.e.mem[offset:])
	return out, nil
}

func (m memAdapter) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.e.mem[offset:], data)
	return nil
}

func (m memAdapter) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.e.mem[offset], nil
}

func (m memAdapter) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.e.mem[offset:]), nil
}

func (m memAdapter) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.e.mem[offset:]), nil
}

func (m memAdapter) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.e.mem[offset:]), nil
}

func (m memAdapter) WriteU8(offset uint32, v uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.e.mem[offset] = v
	return nil
}

func (m memAdapter) WriteU16(offset uint32, v uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.e.mem[offset:], v)
	return nil
}

func (m memAdapter) WriteU32(offset uint32, v uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.e.mem[offset:], v)
	return nil
}

func (m memAdapter) WriteU64(offset uint32, v uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.e.mem[offset:], v)
	return nil
}

func (e *Engine) Memory() jsbridge.Memory { return memAdapter{e: e} }

func (e *Engine) ABIVersion() string { return e.abi }

func (e *Engine) SetHooks(h engine.Hooks) { e.hooks = h }

func (e *Engine) Close(ctx context.Context) error { return nil }

var (
	_ engine.Engine      = (*Engine)(nil)
	_ jsbridge.Allocator = (*Engine)(nil)
)
