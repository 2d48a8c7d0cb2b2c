package store

import (
	"math"
	"testing"
)

func TestAllocateMonotonic(t *testing.T) {
	a := NewAllocator()
	for want := uint32(1); want <= 5; want++ {
		if got := a.Allocate(); got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}
}

func TestReleasedIDNotReused(t *testing.T) {
	a := NewAllocator()
	id := a.Allocate()
	a.Release(id)
	if got := a.Allocate(); got == id {
		t.Errorf("Allocate() reused released id %d before wraparound", id)
	}
}

func TestAllocateWrapsSkippingZero(t *testing.T) {
	a := newAllocatorAt(math.MaxUint32 - 1)
	got := []uint32{a.Allocate(), a.Allocate(), a.Allocate()}
	want := []uint32{math.MaxUint32 - 1, math.MaxUint32, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Allocate() #%d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAllocateWrapSkipsInUse(t *testing.T) {
	a := NewAllocator()
	one, two := a.Allocate(), a.Allocate()
	a.Release(one)
	a.next = math.MaxUint32

	if got := a.Allocate(); got != math.MaxUint32 {
		t.Fatalf("Allocate() = %d, want MaxUint32", got)
	}
	// 0 is skipped, 1 is free again after wraparound, 2 is still in use.
	if got := a.Allocate(); got != one {
		t.Errorf("Allocate() = %d, want %d", got, one)
	}
	if got := a.Allocate(); got == two {
		t.Errorf("Allocate() returned in-use id %d", two)
	}
	if !a.InUse(two) || a.Len() != 4 {
		t.Errorf("InUse(%d) = %v, Len() = %d, want true, 4", two, a.InUse(two), a.Len())
	}
}
