package hostval

import "sync/atomic"

// RefCount is embedded by compound values. The host runtime is reference
// counted: a wrapper in the engine runtime holds one reference for as long
// as it is reachable there, released by the lifetime coordinator when the
// engine's collector finalizes the wrapper.
type RefCount struct {
	n     atomic.Int32
	hooks []func()
}

func (r *RefCount) Init() {
	r.n.Store(1)
}

// Retain increments the reference count.
func (r *RefCount) Retain() {
	r.n.Add(1)
}

// Release decrements the reference count. When the count reaches zero the
// release hooks run in registration order.
func (r *RefCount) Release() {
	if r.n.Add(-1) == 0 {
		for _, h := range r.hooks {
			h()
		}
		r.hooks = nil
	}
}

// Refs returns the current reference count.
func (r *RefCount) Refs() int32 {
	return r.n.Load()
}

// OnRelease registers a hook to run when the count reaches zero. Used by the
// lifetime coordinator to drop engine pins held on behalf of this value.
func (r *RefCount) OnRelease(h func()) {
	r.hooks = append(r.hooks, h)
}

// Compound is implemented by reference-counted host values.
type Compound interface {
	Value
	Retain()
	Release()
	Refs() int32
	OnRelease(func())
}

// fields is insertion-ordered string-keyed storage shared by Map and Object.
type fields struct {
	index map[string]int
	keys  []string
	vals  []Value
}

func newFields() fields {
	return fields{index: make(map[string]int)}
}

func (f *fields) get(key string) (Value, bool) {
	i, ok := f.index[key]
	if !ok {
		return nil, false
	}
	return f.vals[i], true
}

func (f *fields) set(key string, v Value) {
	if i, ok := f.index[key]; ok {
		f.vals[i] = v
		return
	}
	f.index[key] = len(f.keys)
	f.keys = append(f.keys, key)
	f.vals = append(f.vals, v)
}

func (f *fields) delete(key string) bool {
	i, ok := f.index[key]
	if !ok {
		return false
	}
	delete(f.index, key)
	f.keys = append(f.keys[:i], f.keys[i+1:]...)
	f.vals = append(f.vals[:i], f.vals[i+1:]...)
	for j := i; j < len(f.keys); j++ {
		f.index[f.keys[j]] = j
	}
	return true
}

func (f *fields) keyList() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Map is a host mapping. Identity is pointer identity; all wrappers for the
// same *Map resolve reads and writes to this one storage.
type Map struct {
	RefCount
	fields
}

func NewMap() *Map {
	m := &Map{fields: newFields()}
	m.RefCount.Init()
	return m
}

func (*Map) Kind() Kind { return KindMap }

func (m *Map) Get(key string) (Value, bool) { return m.get(key) }
func (m *Map) Set(key string, v Value)      { m.set(key, v) }
func (m *Map) Has(key string) bool          { _, ok := m.get(key); return ok }
func (m *Map) Delete(key string) bool       { return m.delete(key) }
func (m *Map) Keys() []string               { return m.keyList() }
func (m *Map) Len() int                     { return len(m.keys) }

// List is a host ordered sequence.
type List struct {
	RefCount
	items []Value
}

func NewList(items ...Value) *List {
	l := &List{items: items}
	l.RefCount.Init()
	return l
}

func (*List) Kind() Kind { return KindList }

func (l *List) Len() int { return len(l.items) }

func (l *List) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

func (l *List) Set(i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

func (l *List) Append(v Value) {
	l.items = append(l.items, v)
}

// Tuple is a fixed-length immutable sequence.
type Tuple struct {
	RefCount
	items []Value
}

func NewTuple(items ...Value) *Tuple {
	t := &Tuple{items: items}
	t.RefCount.Init()
	return t
}

func (*Tuple) Kind() Kind { return KindTuple }

func (t *Tuple) Len() int { return len(t.items) }

func (t *Tuple) Get(i int) (Value, bool) {
	if i < 0 || i >= len(t.items) {
		return nil, false
	}
	return t.items[i], true
}

// Object is a generic host object: string-keyed properties without mapping
// semantics. The engine sees it through the generic-object proxy family.
type Object struct {
	RefCount
	fields
}

func NewObject() *Object {
	o := &Object{fields: newFields()}
	o.RefCount.Init()
	return o
}

func (*Object) Kind() Kind { return KindObject }

func (o *Object) Get(key string) (Value, bool) { return o.get(key) }
func (o *Object) Set(key string, v Value)      { o.set(key, v) }
func (o *Object) Has(key string) bool          { _, ok := o.get(key); return ok }
func (o *Object) Delete(key string) bool       { return o.delete(key) }
func (o *Object) Keys() []string               { return o.keyList() }

// Func is a host callable.
type Func struct {
	RefCount
	Name   string
	Invoke func(args []Value) (Value, error)
}

func NewFunc(name string, fn func(args []Value) (Value, error)) *Func {
	f := &Func{Name: name, Invoke: fn}
	f.RefCount.Init()
	return f
}

func (*Func) Kind() Kind { return KindFunc }

// Promise is a host wrapper over a deferred engine result.
type Promise struct {
	RefCount
	// Wait blocks until settlement and returns the settled value.
	Wait func() (Value, error)
}

func NewPromise(wait func() (Value, error)) *Promise {
	p := &Promise{Wait: wait}
	p.RefCount.Init()
	return p
}

func (*Promise) Kind() Kind { return KindPromise }
