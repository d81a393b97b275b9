package enginetest_test

import (
	"bytes"
	"testing"

	jsbridge "github.com/Ciarands/jsbridge"
	"github.com/Ciarands/jsbridge/enginetest"
)

func TestAllocatorRegions(t *testing.T) {
	eng := enginetest.New()
	var alloc jsbridge.Allocator = eng

	a, err := alloc.Alloc(24)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	b, err := alloc.Alloc(24)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if a == 0 || b == 0 {
		t.Fatalf("allocations returned null pointers: %d, %d", a, b)
	}
	if b >= a && b < a+24 || a >= b && a < b+24 {
		t.Fatalf("regions overlap: %d and %d", a, b)
	}

	// Regions are writable and independent through the memory surface.
	mem := eng.Memory()
	if err := mem.Write(a, bytes.Repeat([]byte{0xAA}, 24)); err != nil {
		t.Fatal(err)
	}
	if err := mem.Write(b, bytes.Repeat([]byte{0xBB}, 24)); err != nil {
		t.Fatal(err)
	}
	got, err := mem.Read(a, 24)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{0xAA}, 24)) {
		t.Fatal("first region clobbered by second allocation")
	}

	alloc.Free(a)
	alloc.Free(b)
}

func TestAllocZeroSize(t *testing.T) {
	eng := enginetest.New()

	ptr, err := eng.Alloc(0)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if ptr != 0 {
		t.Fatalf("zero-size allocation = %d, want 0", ptr)
	}
}
