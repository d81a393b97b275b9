package proxy

import (
	"fmt"
	"testing"

	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/hostval"
)

func TestFamilyFor(t *testing.T) {
	tests := []struct {
		v    hostval.Value
		want Family
	}{
		{hostval.NewMap(), FamilyMapping},
		{hostval.NewList(), FamilySequence},
		{hostval.NewTuple(), FamilySequence},
		{hostval.NewObject(), FamilyObject},
		{hostval.NewFunc("f", nil), FamilyNone},
		{hostval.Int(1), FamilyNone},
	}
	for _, tt := range tests {
		if got := FamilyFor(tt.v); got != tt.want {
			t.Errorf("FamilyFor(%s) = %s, want %s", tt.v.Kind(), got, tt.want)
		}
	}
}

func TestRegistryIdentity(t *testing.T) {
	r := NewRegistry(nil)
	m := hostval.NewMap()

	h1, fam, err := r.Register(m)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if fam != FamilyMapping {
		t.Fatalf("family = %s, want mapping", fam)
	}
	if m.Refs() != 2 {
		t.Fatalf("refs after register = %d, want 2", m.Refs())
	}

	// Same value again: same handle, no extra retain.
	h2, _, err := r.Register(m)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("same value got two handles: %d and %d", h1, h2)
	}
	if m.Refs() != 2 {
		t.Fatalf("refs after re-register = %d, want 2", m.Refs())
	}

	got, fam, ok := r.Resolve(h1)
	if !ok || got != hostval.Compound(m) || fam != FamilyMapping {
		t.Fatalf("resolve = (%v, %s, %v)", got, fam, ok)
	}
}

func TestRegistryDrop(t *testing.T) {
	r := NewRegistry(nil)
	l := hostval.NewList()

	h, _, err := r.Register(l)
	if err != nil {
		t.Fatal(err)
	}
	r.Drop(h)
	if l.Refs() != 1 {
		t.Fatalf("refs after drop = %d, want 1", l.Refs())
	}
	if _, _, ok := r.Resolve(h); ok {
		t.Fatal("dropped handle still resolves")
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}

	// A fresh registration gets a new handle.
	h2, _, err := r.Register(l)
	if err != nil {
		t.Fatal(err)
	}
	if h2 == h {
		t.Fatal("handle reused after drop")
	}
}

func TestRegistryTupleReadOnly(t *testing.T) {
	r := NewRegistry(nil)

	th, fam, err := r.Register(hostval.NewTuple(hostval.Int(1)))
	if err != nil {
		t.Fatal(err)
	}
	if fam != FamilySequence {
		t.Fatalf("tuple family = %s, want sequence", fam)
	}
	if !r.ReadOnly(th) {
		t.Fatal("tuple handle should be read-only")
	}

	lh, _, err := r.Register(hostval.NewList())
	if err != nil {
		t.Fatal(err)
	}
	if r.ReadOnly(lh) {
		t.Fatal("list handle should be writable")
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(nil)
	m := hostval.NewMap()
	if _, _, err := r.Register(m); err != nil {
		t.Fatal(err)
	}
	r.Close()
	if m.Refs() != 1 {
		t.Fatalf("refs after close = %d, want 1", m.Refs())
	}
	if _, _, err := r.Register(m); err == nil {
		t.Fatal("expected error on closed registry")
	}
}

// fakeObjectOps is an engine object store for wrapper tests. Refs are
// opaque small integers.
type fakeObjectOps struct {
	objects map[engine.Ref]map[string]engine.Ref
	arrays  map[engine.Ref][]engine.Ref
	calls   []engine.Ref
	result  engine.Ref
}

func newFakeObjectOps() *fakeObjectOps {
	return &fakeObjectOps{
		objects: make(map[engine.Ref]map[string]engine.Ref),
		arrays:  make(map[engine.Ref][]engine.Ref),
	}
}

func (f *fakeObjectOps) Get(obj engine.Ref, key string) (engine.Ref, error) {
	return f.objects[obj][key], nil
}

func (f *fakeObjectOps) Set(obj engine.Ref, key string, val engine.Ref) error {
	if f.objects[obj] == nil {
		f.objects[obj] = make(map[string]engine.Ref)
	}
	f.objects[obj][key] = val
	return nil
}

func (f *fakeObjectOps) Has(obj engine.Ref, key string) (bool, error) {
	_, ok := f.objects[obj][key]
	return ok, nil
}

func (f *fakeObjectOps) Delete(obj engine.Ref, key string) error {
	delete(f.objects[obj], key)
	return nil
}

func (f *fakeObjectOps) OwnKeys(obj engine.Ref) ([]string, error) {
	keys := make([]string, 0, len(f.objects[obj]))
	for k := range f.objects[obj] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeObjectOps) GetIndex(obj engine.Ref, i uint32) (engine.Ref, error) {
	return f.arrays[obj][i], nil
}

func (f *fakeObjectOps) SetIndex(obj engine.Ref, i uint32, val engine.Ref) error {
	arr := f.arrays[obj]
	for uint32(len(arr)) <= i {
		arr = append(arr, 0)
	}
	arr[i] = val
	f.arrays[obj] = arr
	return nil
}

func (f *fakeObjectOps) Length(obj engine.Ref) (uint32, error) {
	return uint32(len(f.arrays[obj])), nil
}

func (f *fakeObjectOps) Call(fn, this engine.Ref, args []engine.Ref) (engine.Ref, error) {
	f.calls = append(f.calls, append([]engine.Ref{fn, this}, args...)...)
	return f.result, nil
}

func (f *fakeObjectOps) Await(p engine.Ref) (engine.Ref, error) {
	return p, nil
}

// intConverter crosses integers by numeric identity: host Int(n) is the
// engine ref n.
type intConverter struct{}

func (intConverter) ToHost(ref engine.Ref) (hostval.Value, error) {
	return hostval.Int(ref), nil
}

func (intConverter) FromHost(v hostval.Value) (engine.Ref, error) {
	n, ok := v.(hostval.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected kind %s", v.Kind())
	}
	return engine.Ref(n), nil
}

func TestEngineObjectForwards(t *testing.T) {
	eng := newFakeObjectOps()
	obj := NewEngineObject(eng, intConverter{}, 10)

	if obj.Kind() != hostval.KindMap {
		t.Fatalf("kind = %s, want map", obj.Kind())
	}
	if obj.Ref() != 10 {
		t.Fatalf("ref = %d", obj.Ref())
	}

	if err := obj.Set("x", hostval.Int(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	// The write landed in the engine store, not a host copy.
	if eng.objects[10]["x"] != 7 {
		t.Fatal("write did not reach the engine object")
	}

	got, err := obj.Get("x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(hostval.Int) != 7 {
		t.Fatalf("get = %v, want 7", got)
	}

	ok, err := obj.Has("x")
	if err != nil || !ok {
		t.Fatalf("has = (%v, %v)", ok, err)
	}
	if err := obj.Delete("x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := obj.Has("x"); ok {
		t.Fatal("key survived delete")
	}
}

func TestEngineObjectSharedView(t *testing.T) {
	eng := newFakeObjectOps()
	a := NewEngineObject(eng, intConverter{}, 10)
	b := NewEngineObject(eng, intConverter{}, 10)

	if err := a.Set("k", hostval.Int(1)); err != nil {
		t.Fatal(err)
	}
	got, err := b.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got.(hostval.Int) != 1 {
		t.Fatal("mutation through one view not visible through the other")
	}
}

func TestEngineArray(t *testing.T) {
	eng := newFakeObjectOps()
	arr := NewEngineArray(eng, intConverter{}, 20)

	if arr.Kind() != hostval.KindList {
		t.Fatalf("kind = %s, want list", arr.Kind())
	}
	if err := arr.Append(hostval.Int(5)); err != nil {
		t.Fatal(err)
	}
	if err := arr.Append(hostval.Int(6)); err != nil {
		t.Fatal(err)
	}
	n, err := arr.Len()
	if err != nil || n != 2 {
		t.Fatalf("len = (%d, %v), want 2", n, err)
	}
	if err := arr.Set(1, hostval.Int(9)); err != nil {
		t.Fatal(err)
	}
	got, err := arr.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.(hostval.Int) != 9 {
		t.Fatalf("get(1) = %v, want 9", got)
	}
	if _, err := arr.Get(5); err == nil {
		t.Fatal("expected out of bounds error")
	}
	if err := arr.Set(-1, hostval.Int(0)); err == nil {
		t.Fatal("expected out of bounds error")
	}
}

func TestEngineFuncCall(t *testing.T) {
	eng := newFakeObjectOps()
	eng.result = 99
	fn := NewEngineFunc(eng, intConverter{}, 30)

	if fn.Kind() != hostval.KindFunc {
		t.Fatalf("kind = %s, want func", fn.Kind())
	}
	out, err := fn.Call(hostval.Int(1), hostval.Int(2))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.(hostval.Int) != 99 {
		t.Fatalf("result = %v, want 99", out)
	}
	want := []engine.Ref{30, 0, 1, 2}
	if len(eng.calls) != len(want) {
		t.Fatalf("recorded call = %v, want %v", eng.calls, want)
	}
	for i := range want {
		if eng.calls[i] != want[i] {
			t.Fatalf("recorded call = %v, want %v", eng.calls, want)
		}
	}
}
