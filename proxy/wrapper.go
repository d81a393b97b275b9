package proxy

import (
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
)

// EngineObject is a host view over an engine object. There is no copy:
// reads and writes go straight to the engine object, and two views of the
// same ref observe each other's mutations.
type EngineObject struct {
	hostval.RefCount
	eng  engine.ObjectOps
	conv Converter
	ref  engine.Ref
}

// NewEngineObject wraps the engine object at ref. The caller is
// responsible for pinning ref for the wrapper's lifetime.
func NewEngineObject(eng engine.ObjectOps, conv Converter, ref engine.Ref) *EngineObject {
	o := &EngineObject{eng: eng, conv: conv, ref: ref}
	o.RefCount.Init()
	return o
}

// Kind reports the mapping kind: engine objects read as string-keyed
// mappings on the host side.
func (*EngineObject) Kind() hostval.Kind { return hostval.KindMap }

// Ref returns the wrapped engine ref. Crossing the wrapper back into the
// engine short-circuits to this ref, preserving identity.
func (o *EngineObject) Ref() engine.Ref { return o.ref }

func (o *EngineObject) Get(key string) (hostval.Value, error) {
	r, err := o.eng.Get(o.ref, key)
	if err != nil {
		return nil, err
	}
	return o.conv.ToHost(r)
}

func (o *EngineObject) Set(key string, v hostval.Value) error {
	r, err := o.conv.FromHost(v)
	if err != nil {
		return err
	}
	return o.eng.Set(o.ref, key, r)
}

func (o *EngineObject) Has(key string) (bool, error) {
	return o.eng.Has(o.ref, key)
}

func (o *EngineObject) Delete(key string) error {
	return o.eng.Delete(o.ref, key)
}

func (o *EngineObject) Keys() ([]string, error) {
	return o.eng.OwnKeys(o.ref)
}

// EngineArray is a host view over an engine array, index-addressed with
// live length.
type EngineArray struct {
	hostval.RefCount
	eng  engine.ObjectOps
	conv Converter
	ref  engine.Ref
}

func NewEngineArray(eng engine.ObjectOps, conv Converter, ref engine.Ref) *EngineArray {
	a := &EngineArray{eng: eng, conv: conv, ref: ref}
	a.RefCount.Init()
	return a
}

func (*EngineArray) Kind() hostval.Kind { return hostval.KindList }

func (a *EngineArray) Ref() engine.Ref { return a.ref }

func (a *EngineArray) Len() (int, error) {
	n, err := a.eng.Length(a.ref)
	return int(n), err
}

func (a *EngineArray) Get(i int) (hostval.Value, error) {
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, i, n)
	}
	r, err := a.eng.GetIndex(a.ref, uint32(i))
	if err != nil {
		return nil, err
	}
	return a.conv.ToHost(r)
}

func (a *EngineArray) Set(i int, v hostval.Value) error {
	n, err := a.Len()
	if err != nil {
		return err
	}
	if i < 0 || i >= n {
		return errors.OutOfBounds(errors.PhaseEncode, nil, i, n)
	}
	r, err := a.conv.FromHost(v)
	if err != nil {
		return err
	}
	return a.eng.SetIndex(a.ref, uint32(i), r)
}

func (a *EngineArray) Append(v hostval.Value) error {
	n, err := a.eng.Length(a.ref)
	if err != nil {
		return err
	}
	r, err := a.conv.FromHost(v)
	if err != nil {
		return err
	}
	return a.eng.SetIndex(a.ref, n, r)
}

// EngineFunc is a host-callable view over an engine function.
type EngineFunc struct {
	hostval.RefCount
	eng  engine.ObjectOps
	conv Converter
	ref  engine.Ref
}

func NewEngineFunc(eng engine.ObjectOps, conv Converter, ref engine.Ref) *EngineFunc {
	f := &EngineFunc{eng: eng, conv: conv, ref: ref}
	f.RefCount.Init()
	return f
}

func (*EngineFunc) Kind() hostval.Kind { return hostval.KindFunc }

func (f *EngineFunc) Ref() engine.Ref { return f.ref }

// Call invokes the engine function with host arguments. The receiver is
// the engine's undefined (ref zero).
func (f *EngineFunc) Call(args ...hostval.Value) (hostval.Value, error) {
	refs := make([]engine.Ref, len(args))
	for i, a := range args {
		r, err := f.conv.FromHost(a)
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}
	out, err := f.eng.Call(f.ref, 0, refs)
	if err != nil {
		return nil, err
	}
	return f.conv.ToHost(out)
}
