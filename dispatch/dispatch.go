package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/anchor"
	"github.com/Ciarands/jsbridge/bigint"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
	"github.com/Ciarands/jsbridge/proxy"
)

// DefaultMaxDepth bounds conversion recursion through nested wrappers and
// unbox chains.
const DefaultMaxDepth = 256

// maxSafeInt is the largest magnitude a 64-bit float represents exactly.
const maxSafeInt = int64(1) << 53

// Dispatcher routes values between the runtimes. Conversion is driven by
// the value's exact kind on the sending side: primitives cross by copy,
// compounds cross by reference through the proxy layer, and values that
// match no kind fail classification rather than crossing approximately.
type Dispatcher struct {
	eng      engine.Engine
	reg      *proxy.Registry
	coord    *anchor.Coordinator
	codec    *bigint.Codec
	log      *zap.Logger
	maxDepth int
}

// New creates a dispatcher. It implements proxy.Converter and engine.Hooks:
// install it with eng.SetHooks to receive the engine's proxy traps.
func New(eng engine.Engine, reg *proxy.Registry, coord *anchor.Coordinator, codec *bigint.Codec, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		eng:      eng,
		reg:      reg,
		coord:    coord,
		codec:    codec,
		log:      log,
		maxDepth: DefaultMaxDepth,
	}
}

// SetMaxDepth overrides the recursion limit.
func (d *Dispatcher) SetMaxDepth(n int) {
	if n > 0 {
		d.maxDepth = n
	}
}

// FromHost converts a host value into an engine value. Compound values
// produce proxies sharing the host storage; sending the same compound
// twice yields the same engine identity.
func (d *Dispatcher) FromHost(v hostval.Value) (engine.Ref, error) {
	return d.fromHost(v, 0)
}

func (d *Dispatcher) fromHost(v hostval.Value, depth int) (engine.Ref, error) {
	if depth > d.maxDepth {
		return 0, errors.TooDeep(errors.PhaseEncode, d.maxDepth)
	}
	if v == nil {
		return d.eng.Undefined()
	}

	// Engine-backed wrappers short-circuit to the ref they wrap, so a
	// value that came over from the engine goes back as itself.
	switch w := v.(type) {
	case *proxy.EngineObject:
		return w.Ref(), nil
	case *proxy.EngineArray:
		return w.Ref(), nil
	case *proxy.EngineFunc:
		return w.Ref(), nil
	}

	switch val := v.(type) {
	case hostval.None:
		return d.eng.Undefined()
	case hostval.Null:
		return d.eng.Null()
	case hostval.Bool:
		return d.eng.NewBool(bool(val))
	case hostval.Int:
		if int64(val) > maxSafeInt || int64(val) < -maxSafeInt {
			return 0, errors.New(errors.PhaseEncode, errors.KindConversion).
				HostKind(v.Kind().String()).
				Detail("integer %d exceeds exact float range, send it as an arbitrary-precision value", int64(val)).
				Build()
		}
		return d.eng.NewNumber(float64(val))
	case *hostval.Big:
		return d.codec.Encode(d.eng, d.eng.Memory(), val)
	case hostval.Float:
		return d.eng.NewNumber(float64(val))
	case hostval.String:
		return d.eng.NewString(string(val))
	case hostval.Date:
		return d.eng.NewDate(float64(val.Time.UnixMilli()))
	case hostval.Buffer:
		return d.eng.NewArrayBuffer(val)
	case *hostval.Error:
		return d.eng.NewError(val.Message)
	case *hostval.Func:
		return d.funcToEngine(val)
	case *hostval.Map, *hostval.List, *hostval.Tuple, *hostval.Object:
		return d.compoundToEngine(v.(hostval.Compound))
	case *hostval.Promise:
		return 0, errors.Unsupported(errors.PhaseEncode,
			"host promises do not cross into the engine")
	default:
		return 0, errors.Classification(errors.PhaseEncode, v.Kind().String())
	}
}

// funcToEngine exposes a host callable as an engine function carrying the
// registry handle in the function object.
func (d *Dispatcher) funcToEngine(f *hostval.Func) (engine.Ref, error) {
	if ref, ok := d.coord.Lookup(f); ok {
		return ref, nil
	}
	handle, _, err := d.reg.Register(f)
	if err != nil {
		return 0, err
	}
	ref, err := d.eng.NewHostFunc(handle, f.Name)
	if err != nil {
		return 0, err
	}
	if err := d.coord.Associate(f, ref); err != nil {
		return 0, err
	}
	return ref, nil
}

// compoundToEngine builds a proxy over a host compound, memoized so the
// same compound keeps one engine identity until swept.
func (d *Dispatcher) compoundToEngine(v hostval.Compound) (engine.Ref, error) {
	if ref, ok := d.coord.Lookup(v); ok {
		return ref, nil
	}
	handle, family, err := d.reg.Register(v)
	if err != nil {
		return 0, err
	}
	ref, err := d.eng.NewHostProxy(uint32(family), handle)
	if err != nil {
		return 0, err
	}
	if err := d.coord.Associate(v, ref); err != nil {
		return 0, err
	}
	return ref, nil
}

// ToHost converts the engine value at ref into a host value. Engine
// compounds come back as live views, and proxies over host values unwrap
// to the original host value.
func (d *Dispatcher) ToHost(ref engine.Ref) (hostval.Value, error) {
	return d.toHost(ref, 0)
}

func (d *Dispatcher) toHost(ref engine.Ref, depth int) (hostval.Value, error) {
	if depth > d.maxDepth {
		return nil, errors.TooDeep(errors.PhaseDecode, d.maxDepth)
	}

	tag, err := d.eng.TypeTag(ref)
	if err != nil {
		return nil, err
	}

	switch tag {
	case engine.TagUndefined:
		return hostval.None{}, nil
	case engine.TagNull:
		return hostval.Null{}, nil
	case engine.TagBool:
		b, err := d.eng.ToBool(ref)
		if err != nil {
			return nil, err
		}
		return hostval.Bool(b), nil
	case engine.TagNumber:
		// Every engine number is a 64-bit float, so the kind carries
		// over as-is. Integral values do not narrow to Int.
		f, err := d.eng.ToNumber(ref)
		if err != nil {
			return nil, err
		}
		return hostval.Float(f), nil
	case engine.TagString:
		s, err := d.eng.StringValue(ref)
		if err != nil {
			return nil, err
		}
		return hostval.String(s), nil
	case engine.TagBigInt:
		return d.codec.Decode(d.eng.Memory(), ref)
	case engine.TagSymbol:
		return nil, d.residual(ref, tag)
	case engine.TagObject:
		return d.objectToHost(ref, depth)
	default:
		return nil, d.residual(ref, tag)
	}
}

func (d *Dispatcher) objectToHost(ref engine.Ref, depth int) (hostval.Value, error) {
	// Proxies over host values unwrap to the value they proxy, so a host
	// compound makes the round trip as itself.
	_, handle, isProxy, err := d.eng.ProxyTarget(ref)
	if err != nil {
		return nil, err
	}
	if isProxy {
		v, _, ok := d.reg.Resolve(handle)
		if !ok {
			return nil, errors.InvalidRef(errors.PhaseDecode,
				"proxy carries a dead host handle")
		}
		return v, nil
	}

	class, err := d.eng.BuiltinClass(ref)
	if err != nil {
		return nil, err
	}

	switch class {
	case engine.ClassBoolean, engine.ClassNumber, engine.ClassString, engine.ClassBigInt:
		// Box wrappers convert as their primitive.
		inner, err := d.eng.Unbox(ref)
		if err != nil {
			return nil, err
		}
		return d.toHost(inner, depth+1)

	case engine.ClassDate:
		ms, err := d.eng.DateEpochMs(ref)
		if err != nil {
			return nil, err
		}
		return hostval.Date{Time: time.UnixMilli(int64(ms)).UTC()}, nil

	case engine.ClassError:
		return d.errorToHost(ref)

	case engine.ClassPromise:
		return d.promiseToHost(ref)

	case engine.ClassFunction:
		return d.functionToHost(ref)

	case engine.ClassArray:
		arr := proxy.NewEngineArray(d.eng, d, ref)
		if err := d.coord.AttachEngineRef(ref, arr); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		// Plain objects, foreign proxies, array buffers, and everything
		// unclassified share the generic live view.
		obj := proxy.NewEngineObject(d.eng, d, ref)
		if err := d.coord.AttachEngineRef(ref, obj); err != nil {
			return nil, err
		}
		return obj, nil
	}
}

// functionToHost recovers the original host callable when the engine
// function was minted from one, and wraps real engine functions.
func (d *Dispatcher) functionToHost(ref engine.Ref) (hostval.Value, error) {
	if handle, ok, err := d.eng.HostFuncHandle(ref); err != nil {
		return nil, err
	} else if ok {
		v, _, live := d.reg.Resolve(handle)
		if !live {
			return nil, errors.InvalidRef(errors.PhaseDecode,
				"host function handle is dead")
		}
		return v, nil
	}

	fn := proxy.NewEngineFunc(d.eng, d, ref)
	if err := d.coord.AttachEngineRef(ref, fn); err != nil {
		return nil, err
	}
	return fn, nil
}

func (d *Dispatcher) errorToHost(ref engine.Ref) (hostval.Value, error) {
	msg, err := d.eng.ToString(ref)
	if err != nil {
		return nil, err
	}
	e := &hostval.Error{Message: msg}

	// Stack is best effort: errors without one still cross.
	if stackRef, serr := d.eng.Get(ref, "stack"); serr == nil && stackRef != 0 {
		if tag, terr := d.eng.TypeTag(stackRef); terr == nil && tag == engine.TagString {
			if s, verr := d.eng.StringValue(stackRef); verr == nil {
				e.Stack = s
			}
		}
	}
	return e, nil
}

// promiseToHost wraps an engine promise in a host promise whose Wait
// drives the engine to settlement. The promise ref stays pinned until the
// host wrapper dies.
func (d *Dispatcher) promiseToHost(ref engine.Ref) (hostval.Value, error) {
	p := hostval.NewPromise(func() (hostval.Value, error) {
		settled, err := d.eng.Await(ref)
		if err != nil {
			return nil, err
		}
		return d.ToHost(settled)
	})
	if err := d.coord.AttachEngineRef(ref, p); err != nil {
		return nil, err
	}
	return p, nil
}

// residual reports a classification miss, rendering the offending value
// through the engine so the message names what failed to cross.
func (d *Dispatcher) residual(ref engine.Ref, tag engine.Tag) error {
	rendered, err := d.eng.ToString(ref)
	if err != nil {
		rendered = "<unrepresentable " + tag.String() + ">"
	}
	d.log.Debug("classification miss",
		zap.String("tag", tag.String()),
		zap.String("value", rendered))
	return errors.Classification(errors.PhaseDecode, rendered)
}

// ToHostSafe converts like ToHost but never fails: any conversion error
// is logged, the engine's pending exception is cleared, and the canonical
// host null is substituted.
func (d *Dispatcher) ToHostSafe(ref engine.Ref) hostval.Value {
	v, err := d.ToHost(ref)
	if err == nil {
		return v
	}

	var be *errors.Error
	if errors.AsError(err, &be) && be.Kind == errors.KindClassification {
		d.log.Debug("substituting null for unclassified value", zap.Error(err))
	} else {
		d.log.Warn("substituting null for failed conversion", zap.Error(err))
	}
	d.eng.Clear()
	return hostval.Null{}
}
