package hostval

import (
	"math/big"
	"testing"
)

func TestKindString(t *testing.T) {
	if KindBig.String() != "big" {
		t.Errorf("expected big, got %s", KindBig.String())
	}
	if Kind(200).String() != "unknown" {
		t.Errorf("out-of-range kind should be unknown")
	}
}

func TestKindClasses(t *testing.T) {
	for _, k := range []Kind{KindNone, KindNull, KindBool, KindInt, KindBig, KindFloat, KindString, KindDate, KindBuffer, KindError} {
		if !k.IsPrimitive() {
			t.Errorf("%s should be primitive", k)
		}
	}
	for _, k := range []Kind{KindFunc, KindMap, KindList, KindTuple, KindObject, KindPromise} {
		if !k.IsCompound() {
			t.Errorf("%s should be compound", k)
		}
	}
}

func TestBigZeroNeverAliased(t *testing.T) {
	a := NewBigZero()
	b := NewBigZero()
	if a == b {
		t.Fatal("two zero constructions returned the same allocation")
	}
	if a.Int.Sign() != 0 || b.Int.Sign() != 0 {
		t.Fatal("canonical zero is not zero")
	}
}

func TestBigKindDistinctFromInt(t *testing.T) {
	var v Value = NewBig(big.NewInt(5))
	if v.Kind() != KindBig {
		t.Fatalf("expected big kind, got %s", v.Kind())
	}
	if v.Kind() == Int(5).Kind() {
		t.Fatal("big and int must be distinct kinds")
	}
}

func TestMapOrderAndMutation(t *testing.T) {
	m := NewMap()
	m.Set("a", Int(1))
	m.Set("b", Int(2))
	m.Set("c", Int(3))
	m.Set("b", Int(20))

	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("insertion order lost: %v", keys)
	}

	v, ok := m.Get("b")
	if !ok || v != Int(20) {
		t.Fatalf("overwrite failed: %v %v", v, ok)
	}

	if !m.Delete("b") {
		t.Fatal("delete failed")
	}
	if m.Has("b") {
		t.Fatal("deleted key still present")
	}
	keys = m.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Fatalf("order broken after delete: %v", keys)
	}
}

func TestListBounds(t *testing.T) {
	l := NewList(Int(1), Int(2))
	if _, ok := l.Get(2); ok {
		t.Fatal("out-of-range get should fail")
	}
	if l.Set(-1, Int(0)) {
		t.Fatal("negative set should fail")
	}
	l.Append(Int(3))
	if l.Len() != 3 {
		t.Fatalf("expected 3, got %d", l.Len())
	}
}

func TestRefcountHooks(t *testing.T) {
	m := NewMap()
	if m.Refs() != 1 {
		t.Fatalf("fresh compound should have refcount 1, got %d", m.Refs())
	}

	released := 0
	m.OnRelease(func() { released++ })

	m.Retain()
	m.Release()
	if released != 0 {
		t.Fatal("hook ran while references remain")
	}

	m.Release()
	if released != 1 {
		t.Fatalf("hook should run exactly once, ran %d times", released)
	}
}

func TestTupleImmutableShape(t *testing.T) {
	tu := NewTuple(Int(1), String("x"))
	if tu.Len() != 2 {
		t.Fatalf("expected 2, got %d", tu.Len())
	}
	v, ok := tu.Get(1)
	if !ok || v != String("x") {
		t.Fatalf("get failed: %v %v", v, ok)
	}
}
