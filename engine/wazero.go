package engine

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	jsbridge "github.com/Ciarands/jsbridge"
	"github.com/Ciarands/jsbridge/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum linear memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// WazeroEngine runs an engine build compiled to WebAssembly under wazero
// and implements Engine over its exported surface. A WazeroEngine owns one
// engine context and is not reentrant: callers must serialize access.
type WazeroEngine struct {
	ctx        context.Context
	runtime    wazero.Runtime
	module     api.Module
	mem        api.Memory
	fns        map[string]api.Function
	hooks      Hooks
	gcBegin    []func()
	abiVersion string
}

// New compiles, validates, and instantiates an engine wasm build.
func New(ctx context.Context, engineWASM []byte, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	e := &WazeroEngine{
		ctx:     ctx,
		runtime: r,
		fns:     make(map[string]api.Function),
	}

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	if err := e.instantiateHostModule(ctx); err != nil {
		r.Close(ctx)
		return nil, err
	}

	compiled, err := r.CompileModule(ctx, engineWASM)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Load("compile engine module", err)
	}

	if err := validateExports(compiled.ExportedFunctions()); err != nil {
		r.Close(ctx)
		return nil, err
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("engine"))
	if err != nil {
		r.Close(ctx)
		return nil, errors.Load("instantiate engine module", err)
	}
	e.module = mod
	e.mem = mod.Memory()

	for name := range compiled.ExportedFunctions() {
		if fn := mod.ExportedFunction(name); fn != nil {
			e.fns[name] = fn
		}
	}

	if err := e.readABIVersion(); err != nil {
		r.Close(ctx)
		return nil, err
	}
	if e.abiVersion != ABIVersionSupported {
		r.Close(ctx)
		return nil, errors.ABIMismatch(ABIVersionSupported, e.abiVersion)
	}

	Logger().Info("engine instantiated",
		zap.String("abi", e.abiVersion),
		zap.Int("exports", len(e.fns)))

	return e, nil
}

// instantiateHostModule registers the trap surface the guest imports.
func (e *WazeroEngine) instantiateHostModule(ctx context.Context) error {
	_, err := e.runtime.NewHostModuleBuilder("jsbridge").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, family, handle, key uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		return uint32(e.hooks.ProxyGet(family, handle, Ref(key)))
	}).Export("proxy-get").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, family, handle, key, val uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		return b2u(e.hooks.ProxySet(family, handle, Ref(key), Ref(val)))
	}).Export("proxy-set").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, family, handle, key uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		return b2u(e.hooks.ProxyHas(family, handle, Ref(key)))
	}).Export("proxy-has").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, family, handle, key uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		return b2u(e.hooks.ProxyDelete(family, handle, Ref(key)))
	}).Export("proxy-delete").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, family, handle uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		return uint32(e.hooks.ProxyKeys(family, handle))
	}).Export("proxy-keys").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, handle, this, args uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		refs, err := e.arrayRefs(Ref(args))
		if err != nil {
			return 0
		}
		return uint32(e.hooks.ProxyCall(handle, Ref(this), refs))
	}).Export("proxy-call").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, handle, args uint32) uint32 {
		if e.hooks == nil {
			return 0
		}
		refs, err := e.arrayRefs(Ref(args))
		if err != nil {
			return 0
		}
		return uint32(e.hooks.HostCall(handle, refs))
	}).Export("host-call").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module, handle uint32) {
		if e.hooks != nil {
			e.hooks.ProxyFinalized(handle)
		}
	}).Export("proxy-finalized").
		NewFunctionBuilder().WithFunc(func(_ context.Context, _ api.Module) {
		for _, cb := range e.gcBegin {
			cb()
		}
	}).Export("gc-begin").
		Instantiate(ctx)
	if err != nil {
		return errors.Load("instantiate host module", err)
	}
	return nil
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// call invokes an exported engine function.
func (e *WazeroEngine) call(name string, params ...uint64) (uint64, error) {
	fn, ok := e.fns[name]
	if !ok {
		return 0, errors.NotFound(errors.PhaseCall, "engine export", name)
	}
	results, err := fn.Call(e.ctx, params...)
	if err != nil {
		return 0, errors.Engine(errors.PhaseCall, name, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// Alloc reserves size bytes on the guest heap via the engine's mem-alloc
// export. The caller releases with Free.
func (e *WazeroEngine) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	ptr, err := e.call("mem-alloc", uint64(size))
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, errors.Engine(errors.PhaseCall, "mem-alloc", nil)
	}
	return uint32(ptr), nil
}

// Free returns a region obtained from Alloc to the guest heap.
func (e *WazeroEngine) Free(ptr uint32) {
	if ptr != 0 {
		_, _ = e.call("mem-free", uint64(ptr))
	}
}

var _ jsbridge.Allocator = (*WazeroEngine)(nil)

// writeTemp copies data into guest memory via the guest allocator. The
// caller frees with Free after the dependent call returns.
func (e *WazeroEngine) writeTemp(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ptr, err := e.Alloc(uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if !e.mem.Write(ptr, data) {
		e.Free(ptr)
		return 0, errors.OutOfBounds(errors.PhaseCall, nil, int(ptr), int(e.mem.Size()))
	}
	return ptr, nil
}

// callWithString invokes name with (ptr, len) of s prepended to rest.
func (e *WazeroEngine) callWithString(name, s string, pre []uint64, post ...uint64) (uint64, error) {
	ptr, err := e.writeTemp([]byte(s))
	if err != nil {
		return 0, err
	}
	defer e.Free(ptr)
	params := append(append(append([]uint64{}, pre...), uint64(ptr), uint64(len(s))), post...)
	return e.call(name, params...)
}

func (e *WazeroEngine) readGuestString(ptr, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	data, ok := e.mem.Read(ptr, length)
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseDecode, nil, int(ptr), int(e.mem.Size()))
	}
	return string(data), nil
}

func (e *WazeroEngine) readABIVersion() error {
	ptr, err := e.call("abi-version-ptr")
	if err != nil {
		return err
	}
	length, err := e.call("abi-version-len")
	if err != nil {
		return err
	}
	v, err := e.readGuestString(uint32(ptr), uint32(length))
	if err != nil {
		return err
	}
	e.abiVersion = v
	return nil
}

// arrayRefs reads an engine array of values into host refs.
func (e *WazeroEngine) arrayRefs(arr Ref) ([]Ref, error) {
	n, err := e.Length(arr)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, n)
	for i := uint32(0); i < n; i++ {
		r, err := e.GetIndex(arr, i)
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}
	return refs, nil
}

// Inspector

func (e *WazeroEngine) TypeTag(ref Ref) (Tag, error) {
	v, err := e.call("value-tag", uint64(ref))
	return Tag(v), err
}

func (e *WazeroEngine) BuiltinClass(ref Ref) (Class, error) {
	v, err := e.call("builtin-class", uint64(ref))
	return Class(v), err
}

func (e *WazeroEngine) Unbox(ref Ref) (Ref, error) {
	v, err := e.call("unbox", uint64(ref))
	return Ref(v), err
}

func (e *WazeroEngine) ToBool(ref Ref) (bool, error) {
	v, err := e.call("to-bool", uint64(ref))
	return v != 0, err
}

func (e *WazeroEngine) ToNumber(ref Ref) (float64, error) {
	v, err := e.call("to-number", uint64(ref))
	return math.Float64frombits(v), err
}

func (e *WazeroEngine) ToString(ref Ref) (string, error) {
	s, err := e.call("to-string", uint64(ref))
	if err != nil {
		return "", err
	}
	return e.StringValue(Ref(s))
}

func (e *WazeroEngine) StringValue(ref Ref) (string, error) {
	ptr, err := e.call("string-ptr", uint64(ref))
	if err != nil {
		return "", err
	}
	length, err := e.call("string-len", uint64(ref))
	if err != nil {
		return "", err
	}
	return e.readGuestString(uint32(ptr), uint32(length))
}

func (e *WazeroEngine) DateEpochMs(ref Ref) (float64, error) {
	v, err := e.call("date-epoch-ms", uint64(ref))
	return math.Float64frombits(v), err
}

// ObjectOps

func (e *WazeroEngine) Get(obj Ref, key string) (Ref, error) {
	v, err := e.callWithString("get-prop", key, []uint64{uint64(obj)})
	return Ref(v), err
}

func (e *WazeroEngine) Set(obj Ref, key string, val Ref) error {
	ok, err := e.callWithString("set-prop", key, []uint64{uint64(obj)}, uint64(val))
	if err != nil {
		return err
	}
	if ok == 0 {
		return errors.Engine(errors.PhaseCall, "set-prop", nil)
	}
	return nil
}

func (e *WazeroEngine) Has(obj Ref, key string) (bool, error) {
	v, err := e.callWithString("has-prop", key, []uint64{uint64(obj)})
	return v != 0, err
}

func (e *WazeroEngine) Delete(obj Ref, key string) error {
	ok, err := e.callWithString("delete-prop", key, []uint64{uint64(obj)})
	if err != nil {
		return err
	}
	if ok == 0 {
		return errors.Engine(errors.PhaseCall, "delete-prop", nil)
	}
	return nil
}

func (e *WazeroEngine) OwnKeys(obj Ref) ([]string, error) {
	arr, err := e.call("own-keys", uint64(obj))
	if err != nil {
		return nil, err
	}
	if arr == 0 {
		return nil, errors.Engine(errors.PhaseCall, "own-keys", nil)
	}
	refs, err := e.arrayRefs(Ref(arr))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i], err = e.StringValue(r)
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (e *WazeroEngine) GetIndex(obj Ref, i uint32) (Ref, error) {
	v, err := e.call("get-index", uint64(obj), uint64(i))
	return Ref(v), err
}

func (e *WazeroEngine) SetIndex(obj Ref, i uint32, val Ref) error {
	ok, err := e.call("set-index", uint64(obj), uint64(i), uint64(val))
	if err != nil {
		return err
	}
	if ok == 0 {
		return errors.Engine(errors.PhaseCall, "set-index", nil)
	}
	return nil
}

func (e *WazeroEngine) Length(obj Ref) (uint32, error) {
	v, err := e.call("array-length", uint64(obj))
	return uint32(v), err
}

func (e *WazeroEngine) Call(fn, this Ref, args []Ref) (Ref, error) {
	var argv uint32
	if len(args) > 0 {
		buf := make([]byte, 4*len(args))
		for i, a := range args {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(a))
		}
		var err error
		argv, err = e.writeTemp(buf)
		if err != nil {
			return 0, err
		}
		defer e.Free(argv)
	}
	v, err := e.call("call", uint64(fn), uint64(this), uint64(argv), uint64(len(args)))
	return Ref(v), err
}

func (e *WazeroEngine) Await(p Ref) (Ref, error) {
	v, err := e.call("await-promise", uint64(p))
	return Ref(v), err
}

// Constructor

func (e *WazeroEngine) Undefined() (Ref, error) {
	v, err := e.call("new-undefined")
	return Ref(v), err
}

func (e *WazeroEngine) Null() (Ref, error) {
	v, err := e.call("new-null")
	return Ref(v), err
}

func (e *WazeroEngine) NewBool(b bool) (Ref, error) {
	v, err := e.call("new-bool", uint64(b2u(b)))
	return Ref(v), err
}

func (e *WazeroEngine) NewNumber(f float64) (Ref, error) {
	v, err := e.call("new-number", math.Float64bits(f))
	return Ref(v), err
}

func (e *WazeroEngine) NewString(s string) (Ref, error) {
	v, err := e.callWithString("new-string", s, nil)
	return Ref(v), err
}

func (e *WazeroEngine) NewObject() (Ref, error) {
	v, err := e.call("new-object")
	return Ref(v), err
}

func (e *WazeroEngine) NewArray(length uint32) (Ref, error) {
	v, err := e.call("new-array", uint64(length))
	return Ref(v), err
}

func (e *WazeroEngine) NewDate(epochMs float64) (Ref, error) {
	v, err := e.call("new-date", math.Float64bits(epochMs))
	return Ref(v), err
}

func (e *WazeroEngine) NewError(msg string) (Ref, error) {
	v, err := e.callWithString("new-error", msg, nil)
	return Ref(v), err
}

func (e *WazeroEngine) NewArrayBuffer(data []byte) (Ref, error) {
	ptr, err := e.writeTemp(data)
	if err != nil {
		return 0, err
	}
	defer e.Free(ptr)
	v, err := e.call("new-array-buffer", uint64(ptr), uint64(len(data)))
	return Ref(v), err
}

// BigIntOps

func (e *WazeroEngine) ParseBigIntHex(hexDigits string) (Ref, error) {
	v, err := e.callWithString("bigint-from-hex", hexDigits, nil)
	return Ref(v), err
}

func (e *WazeroEngine) BigIntFromUint64(u uint64) (Ref, error) {
	v, err := e.call("bigint-from-u64", u)
	return Ref(v), err
}

// ProxyOps

func (e *WazeroEngine) NewHostProxy(family, handle uint32) (Ref, error) {
	v, err := e.call("new-host-proxy", uint64(family), uint64(handle))
	return Ref(v), err
}

func (e *WazeroEngine) ProxyTarget(ref Ref) (family, handle uint32, ok bool, err error) {
	f, err := e.call("proxy-family", uint64(ref))
	if err != nil || f == 0 {
		return 0, 0, false, err
	}
	h, err := e.call("proxy-handle", uint64(ref))
	if err != nil {
		return 0, 0, false, err
	}
	return uint32(f), uint32(h), true, nil
}

func (e *WazeroEngine) NewHostFunc(handle uint32, name string) (Ref, error) {
	v, err := e.callWithString("new-host-func", name, []uint64{uint64(handle)})
	return Ref(v), err
}

func (e *WazeroEngine) HostFuncHandle(ref Ref) (uint32, bool, error) {
	h, err := e.call("host-func-handle", uint64(ref))
	if err != nil || h == 0 {
		return 0, false, err
	}
	return uint32(h), true, nil
}

// Lifetime

func (e *WazeroEngine) Pin(ref Ref) error {
	ok, err := e.call("pin", uint64(ref))
	if err != nil {
		return err
	}
	if ok == 0 {
		return errors.InvalidRef(errors.PhaseAnchor, "pin rejected")
	}
	return nil
}

func (e *WazeroEngine) Unpin(ref Ref) error {
	_, err := e.call("unpin", uint64(ref))
	return err
}

func (e *WazeroEngine) GC() error {
	_, err := e.call("run-gc")
	return err
}

func (e *WazeroEngine) OnGCStart(cb func()) {
	e.gcBegin = append(e.gcBegin, cb)
}

// ErrorState

func (e *WazeroEngine) Pending() bool {
	v, err := e.call("pending-exception")
	return err == nil && v != 0
}

func (e *WazeroEngine) TakeError() (Ref, bool) {
	v, err := e.call("take-exception")
	if err != nil || v == 0 {
		return 0, false
	}
	return Ref(v), true
}

func (e *WazeroEngine) Clear() {
	_, _ = e.call("clear-exception")
}

func (e *WazeroEngine) Throw(msg string) error {
	_, err := e.callWithString("throw-error", msg, nil)
	return err
}

// Evaluator

func (e *WazeroEngine) Eval(source string, opts EvalOptions) (Ref, error) {
	srcPtr, err := e.writeTemp([]byte(source))
	if err != nil {
		return 0, err
	}
	defer e.Free(srcPtr)

	filename := opts.Filename
	if filename == "" {
		filename = "@evaluate"
	}
	filePtr, err := e.writeTemp([]byte(filename))
	if err != nil {
		return 0, err
	}
	defer e.Free(filePtr)

	line := opts.Line
	if line == 0 {
		line = 1
	}
	var flags uint64
	if opts.Strict {
		flags |= 1
	}

	v, err := e.call("eval",
		uint64(srcPtr), uint64(len(source)),
		uint64(filePtr), uint64(len(filename)),
		uint64(line), flags)
	return Ref(v), err
}

func (e *WazeroEngine) IsCompilableUnit(source string) (bool, error) {
	v, err := e.callWithString("is-compilable-unit", source, nil)
	return v != 0, err
}

// Memory returns the engine's linear memory.
func (e *WazeroEngine) Memory() jsbridge.Memory {
	return &wazeroMemory{mem: e.mem}
}

// ABIVersion identifies the engine build's internal value layout.
func (e *WazeroEngine) ABIVersion() string {
	return e.abiVersion
}

// SetHooks installs the host-side trap handlers.
func (e *WazeroEngine) SetHooks(h Hooks) {
	e.hooks = h
}

// Close tears down the wasm runtime and everything instantiated in it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// wazeroMemory adapts api.Memory to the root Memory interface.
type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), int(m.mem.Size()))
	}
	// Copy out: the underlying view is invalidated by memory growth.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *wazeroMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), int(m.mem.Size()))
	}
	return v, nil
}

func (m *wazeroMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), int(m.mem.Size()))
	}
	return v, nil
}

func (m *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), int(m.mem.Size()))
	}
	return v, nil
}

func (m *wazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, int(offset), int(m.mem.Size()))
	}
	return v, nil
}

func (m *wazeroMemory) WriteU8(offset uint32, v uint8) error {
	if !m.mem.WriteByte(offset, v) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *wazeroMemory) WriteU16(offset uint32, v uint16) error {
	if !m.mem.WriteUint16Le(offset, v) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *wazeroMemory) WriteU32(offset uint32, v uint32) error {
	if !m.mem.WriteUint32Le(offset, v) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *wazeroMemory) WriteU64(offset uint32, v uint64) error {
	if !m.mem.WriteUint64Le(offset, v) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, int(offset), int(m.mem.Size()))
	}
	return nil
}

func (m *wazeroMemory) Size() uint32 {
	return m.mem.Size()
}
