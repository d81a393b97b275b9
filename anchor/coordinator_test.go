package anchor

import (
	"testing"

	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/hostval"
)

type fakeLifetime struct {
	pins    map[engine.Ref]int
	unpins  []engine.Ref
	gcStart []func()
	gcRuns  int
}

func newFakeLifetime() *fakeLifetime {
	return &fakeLifetime{pins: make(map[engine.Ref]int)}
}

func (f *fakeLifetime) Pin(ref engine.Ref) error {
	f.pins[ref]++
	return nil
}

func (f *fakeLifetime) Unpin(ref engine.Ref) error {
	f.pins[ref]--
	f.unpins = append(f.unpins, ref)
	return nil
}

func (f *fakeLifetime) GC() error {
	f.gcRuns++
	for _, cb := range f.gcStart {
		cb()
	}
	return nil
}

func (f *fakeLifetime) OnGCStart(cb func()) {
	f.gcStart = append(f.gcStart, cb)
}

func TestAttachEngineRefPinsOnce(t *testing.T) {
	life := newFakeLifetime()
	c := New(life, nil)

	a := hostval.NewMap()
	b := hostval.NewMap()
	if err := c.AttachEngineRef(100, a); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := c.AttachEngineRef(100, b); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if life.pins[100] != 1 {
		t.Fatalf("engine pin count = %d, want 1", life.pins[100])
	}

	a.Release()
	if life.pins[100] != 1 {
		t.Fatal("ref unpinned while a wrapper still holds it")
	}
	b.Release()
	if life.pins[100] != 0 {
		t.Fatalf("engine pin count after both releases = %d, want 0", life.pins[100])
	}
}

func TestAttachZeroRef(t *testing.T) {
	c := New(newFakeLifetime(), nil)
	if err := c.AttachEngineRef(0, hostval.NewMap()); err == nil {
		t.Fatal("expected error for zero ref")
	}
}

func TestAssociateLookup(t *testing.T) {
	life := newFakeLifetime()
	c := New(life, nil)

	v := hostval.NewList()
	v.Retain() // stands for the proxy registry's retain

	if _, ok := c.Lookup(v); ok {
		t.Fatal("lookup before associate should miss")
	}
	if err := c.Associate(v, 200); err != nil {
		t.Fatalf("associate: %v", err)
	}
	if life.pins[200] != 1 {
		t.Fatalf("ref pin count = %d, want 1", life.pins[200])
	}
	ref, ok := c.Lookup(v)
	if !ok || ref != 200 {
		t.Fatalf("lookup = (%d, %v), want (200, true)", ref, ok)
	}

	// A later ref for the same value wins the lookup.
	if err := c.Associate(v, 201); err != nil {
		t.Fatalf("associate: %v", err)
	}
	if ref, _ := c.Lookup(v); ref != 201 {
		t.Fatalf("lookup = %d, want 201", ref)
	}
}

func TestSweepDropsUnreachableEntries(t *testing.T) {
	life := newFakeLifetime()
	c := New(life, nil)

	dead := hostval.NewList()
	dead.Retain() // registry's retain
	live := hostval.NewList()
	live.Retain() // registry's retain
	if err := c.Associate(dead, 300); err != nil {
		t.Fatal(err)
	}
	if err := c.Associate(live, 400); err != nil {
		t.Fatal(err)
	}

	// The caller drops its reference to dead; live stays externally held.
	dead.Release()

	if err := c.Collect(); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if life.gcRuns != 1 {
		t.Fatalf("gc runs = %d, want 1", life.gcRuns)
	}

	if _, ok := c.Lookup(dead); ok {
		t.Fatal("unreachable association survived the sweep")
	}
	if _, ok := c.Lookup(live); !ok {
		t.Fatal("live association was swept")
	}
	if life.pins[300] != 0 {
		t.Fatalf("swept ref still pinned (%d)", life.pins[300])
	}
	if life.pins[400] != 1 {
		t.Fatalf("live ref pin count = %d, want 1", life.pins[400])
	}
}

func TestClosedCoordinator(t *testing.T) {
	life := newFakeLifetime()
	c := New(life, nil)

	v := hostval.NewMap()
	if err := c.Associate(v, 500); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if err := c.Associate(v, 501); err == nil {
		t.Fatal("expected error on closed coordinator")
	}
	if err := c.AttachEngineRef(501, v); err == nil {
		t.Fatal("expected error on closed coordinator")
	}
	if err := c.Collect(); err == nil {
		t.Fatal("expected error on closed coordinator")
	}
	c.Close() // second close is a no-op
}

func TestStats(t *testing.T) {
	life := newFakeLifetime()
	c := New(life, nil)

	v := hostval.NewMap()
	w := hostval.NewMap()
	if err := c.AttachEngineRef(600, v); err != nil {
		t.Fatal(err)
	}
	if err := c.Associate(w, 601); err != nil {
		t.Fatal(err)
	}
	pins, assoc := c.Stats()
	if pins != 1 || assoc != 1 {
		t.Fatalf("stats = (%d, %d), want (1, 1)", pins, assoc)
	}
}
