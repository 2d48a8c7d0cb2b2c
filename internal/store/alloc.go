package store

// Allocator issues notification ids. Ids increase monotonically and wrap
// around, skipping 0 and any id still in use. A released id is not handed
// out again until the counter wraps.
type Allocator struct {
	next  uint32
	inUse map[uint32]struct{}
}

// NewAllocator creates an Allocator whose first id is 1.
func NewAllocator() *Allocator {
	return newAllocatorAt(1)
}

func newAllocatorAt(next uint32) *Allocator {
	return &Allocator{next: next, inUse: make(map[uint32]struct{})}
}

// Allocate returns a fresh id and marks it in use.
func (a *Allocator) Allocate() uint32 {
	for {
		id := a.next
		a.next++
		if id == 0 {
			continue
		}
		if _, used := a.inUse[id]; used {
			continue
		}
		a.inUse[id] = struct{}{}
		return id
	}
}

// InUse reports whether id is currently allocated.
func (a *Allocator) InUse(id uint32) bool {
	_, ok := a.inUse[id]
	return ok
}

// Release returns id to the pool.
func (a *Allocator) Release(id uint32) {
	delete(a.inUse, id)
}

// Len returns the number of allocated ids.
func (a *Allocator) Len() int {
	return len(a.inUse)
}
