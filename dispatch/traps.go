package dispatch

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
	"github.com/Ciarands/jsbridge/proxy"
)

// The engine reports trap failures as thrown exceptions, so every trap
// converts its error into a throw and returns the zero ref or false.

func (d *Dispatcher) trapThrow(op string, err error) {
	d.log.Warn("proxy trap failed", zap.String("op", op), zap.Error(err))
	if terr := d.eng.Throw(err.Error()); terr != nil {
		d.log.Error("throw failed", zap.Error(terr))
	}
}

// propKey reads a trap key as a property name. Engine property keys are
// strings; numeric keys arrive as numbers from index traps.
func (d *Dispatcher) propKey(key engine.Ref) (string, error) {
	kv, err := d.ToHost(key)
	if err != nil {
		return "", err
	}
	switch k := kv.(type) {
	case hostval.String:
		return string(k), nil
	case hostval.Float:
		return strconv.FormatFloat(float64(k), 'f', -1, 64), nil
	default:
		return "", errors.InvalidInput(errors.PhaseDecode,
			"property key of kind "+kv.Kind().String())
	}
}

// seqIndex interprets a trap key against a sequence: an element index, or
// the length pseudo-property.
func seqIndex(key string, length int) (idx int, isLength bool, err error) {
	if key == "length" {
		return 0, true, nil
	}
	i, aerr := strconv.Atoi(key)
	if aerr != nil {
		return 0, false, errors.InvalidInput(errors.PhaseDecode,
			"sequence key "+strconv.Quote(key))
	}
	if i < 0 || i >= length {
		return 0, false, errors.OutOfBounds(errors.PhaseDecode, nil, i, length)
	}
	return i, false, nil
}

// ProxyGet serves property reads on engine proxies over host values.
// Missing keys read as the engine's undefined, matching property access
// semantics on the engine side.
func (d *Dispatcher) ProxyGet(family, handle uint32, key engine.Ref) engine.Ref {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		d.trapThrow("get", errors.InvalidRef(errors.PhaseCall, "dead proxy handle"))
		return 0
	}
	k, err := d.propKey(key)
	if err != nil {
		d.trapThrow("get", err)
		return 0
	}

	var got hostval.Value
	var found bool
	switch target := v.(type) {
	case *hostval.Map:
		got, found = target.Get(k)
	case *hostval.Object:
		got, found = target.Get(k)
	case *hostval.List:
		got, found = seqGet(k, target.Len(), target.Get)
	case *hostval.Tuple:
		got, found = seqGet(k, target.Len(), target.Get)
	default:
		d.trapThrow("get", errors.Classification(errors.PhaseCall, v.Kind().String()))
		return 0
	}

	if !found {
		ref, err := d.eng.Undefined()
		if err != nil {
			d.trapThrow("get", err)
			return 0
		}
		return ref
	}
	ref, err := d.FromHost(got)
	if err != nil {
		d.trapThrow("get", err)
		return 0
	}
	return ref
}

func seqGet(key string, length int, get func(int) (hostval.Value, bool)) (hostval.Value, bool) {
	if key == "length" {
		return hostval.Int(length), true
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= length {
		return nil, false
	}
	return get(i)
}

// ProxySet serves property writes. Writes through a read-only handle are
// rejected with a thrown error.
func (d *Dispatcher) ProxySet(family, handle uint32, key, val engine.Ref) bool {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		d.trapThrow("set", errors.InvalidRef(errors.PhaseCall, "dead proxy handle"))
		return false
	}
	if d.reg.ReadOnly(handle) {
		d.trapThrow("set", errors.ReadOnly(errors.PhaseCall, v.Kind().String()))
		return false
	}
	k, err := d.propKey(key)
	if err != nil {
		d.trapThrow("set", err)
		return false
	}
	hv, err := d.ToHost(val)
	if err != nil {
		d.trapThrow("set", err)
		return false
	}

	switch target := v.(type) {
	case *hostval.Map:
		target.Set(k, hv)
	case *hostval.Object:
		target.Set(k, hv)
	case *hostval.List:
		i, isLength, err := seqIndex(k, target.Len()+1)
		if err != nil || isLength {
			if err == nil {
				err = errors.ReadOnly(errors.PhaseCall, "sequence length")
			}
			d.trapThrow("set", err)
			return false
		}
		// Writing one past the end extends the sequence.
		if i == target.Len() {
			target.Append(hv)
		} else {
			target.Set(i, hv)
		}
	default:
		d.trapThrow("set", errors.Classification(errors.PhaseCall, v.Kind().String()))
		return false
	}
	return true
}

// ProxyHas serves membership tests.
func (d *Dispatcher) ProxyHas(family, handle uint32, key engine.Ref) bool {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		return false
	}
	k, err := d.propKey(key)
	if err != nil {
		d.trapThrow("has", err)
		return false
	}

	switch target := v.(type) {
	case *hostval.Map:
		return target.Has(k)
	case *hostval.Object:
		return target.Has(k)
	case *hostval.List:
		_, found := seqGet(k, target.Len(), target.Get)
		return found
	case *hostval.Tuple:
		_, found := seqGet(k, target.Len(), target.Get)
		return found
	default:
		return false
	}
}

// ProxyDelete serves property deletion. Sequences do not delete.
func (d *Dispatcher) ProxyDelete(family, handle uint32, key engine.Ref) bool {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		return false
	}
	if d.reg.ReadOnly(handle) {
		d.trapThrow("delete", errors.ReadOnly(errors.PhaseCall, v.Kind().String()))
		return false
	}
	k, err := d.propKey(key)
	if err != nil {
		d.trapThrow("delete", err)
		return false
	}

	switch target := v.(type) {
	case *hostval.Map:
		return target.Delete(k)
	case *hostval.Object:
		return target.Delete(k)
	default:
		return false
	}
}

// ProxyKeys serves own-key enumeration as an engine array of strings.
func (d *Dispatcher) ProxyKeys(family, handle uint32) engine.Ref {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		d.trapThrow("keys", errors.InvalidRef(errors.PhaseCall, "dead proxy handle"))
		return 0
	}

	var keys []string
	switch target := v.(type) {
	case *hostval.Map:
		keys = target.Keys()
	case *hostval.Object:
		keys = target.Keys()
	case *hostval.List:
		keys = indexKeys(target.Len())
	case *hostval.Tuple:
		keys = indexKeys(target.Len())
	default:
		d.trapThrow("keys", errors.Classification(errors.PhaseCall, v.Kind().String()))
		return 0
	}

	arr, err := d.eng.NewArray(uint32(len(keys)))
	if err != nil {
		d.trapThrow("keys", err)
		return 0
	}
	for i, k := range keys {
		kr, err := d.eng.NewString(k)
		if err != nil {
			d.trapThrow("keys", err)
			return 0
		}
		if err := d.eng.SetIndex(arr, uint32(i), kr); err != nil {
			d.trapThrow("keys", err)
			return 0
		}
	}
	return arr
}

func indexKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

// ProxyCall serves invocation of proxied host callables. The engine-side
// receiver does not cross.
func (d *Dispatcher) ProxyCall(handle uint32, this engine.Ref, args []engine.Ref) engine.Ref {
	return d.invokeHost("call", handle, args)
}

// HostCall serves invocation of host functions minted by NewHostFunc.
func (d *Dispatcher) HostCall(handle uint32, args []engine.Ref) engine.Ref {
	return d.invokeHost("host-call", handle, args)
}

func (d *Dispatcher) invokeHost(op string, handle uint32, args []engine.Ref) engine.Ref {
	v, _, ok := d.reg.Resolve(handle)
	if !ok {
		d.trapThrow(op, errors.InvalidRef(errors.PhaseCall, "dead callable handle"))
		return 0
	}
	fn, ok := v.(*hostval.Func)
	if !ok || fn.Invoke == nil {
		d.trapThrow(op, errors.InvalidInput(errors.PhaseCall,
			"handle does not name a callable"))
		return 0
	}

	hostArgs := make([]hostval.Value, len(args))
	for i, a := range args {
		hv, err := d.ToHost(a)
		if err != nil {
			d.trapThrow(op, err)
			return 0
		}
		hostArgs[i] = hv
	}

	out, err := fn.Invoke(hostArgs)
	if err != nil {
		d.trapThrow(op, err)
		return 0
	}
	if out == nil {
		out = hostval.None{}
	}
	ref, err := d.FromHost(out)
	if err != nil {
		d.trapThrow(op, err)
		return 0
	}
	return ref
}

// ProxyFinalized drops the handle when the engine's collector reclaims
// the proxy.
func (d *Dispatcher) ProxyFinalized(handle uint32) {
	d.reg.Drop(handle)
}

// interface check
var (
	_ engine.Hooks    = (*Dispatcher)(nil)
	_ proxy.Converter = (*Dispatcher)(nil)
)
