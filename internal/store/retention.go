package store

import (
	"container/list"

	"github.com/llehouerou/notifyd/internal/notify"
)

// DefaultRetentionBytes is the default history budget.
const DefaultRetentionBytes = 50 << 20

type retained struct {
	n    notify.Notification
	size int
}

// Retention is the byte-budgeted history of closed notifications, oldest
// first. The total size is maintained incrementally.
type Retention struct {
	budget int
	total  int
	items  *list.List // front = oldest
	index  map[uint32]*list.Element
}

// NewRetention creates a queue holding at most budget estimated bytes.
func NewRetention(budget int) *Retention {
	if budget <= 0 {
		budget = DefaultRetentionBytes
	}
	return &Retention{
		budget: budget,
		items:  list.New(),
		index:  make(map[uint32]*list.Element),
	}
}

// Push appends n and evicts the oldest entries until the total is within
// budget. It returns the evicted records.
func (r *Retention) Push(n notify.Notification) []notify.Notification {
	r.Remove(n.ID)
	item := &retained{n: n, size: n.EstimatedSize()}
	r.index[n.ID] = r.items.PushBack(item)
	r.total += item.size
	return r.enforce()
}

func (r *Retention) enforce() []notify.Notification {
	var evicted []notify.Notification
	for r.total > r.budget {
		front := r.items.Front()
		if front == nil {
			break
		}
		item := r.removeElement(front)
		evicted = append(evicted, item.n)
	}
	return evicted
}

func (r *Retention) removeElement(e *list.Element) *retained {
	item := r.items.Remove(e).(*retained) //nolint:forcetypeassert // list only holds *retained
	delete(r.index, item.n.ID)
	r.total -= item.size
	return item
}

// Remove deletes the record with id. It reports whether one was found.
func (r *Retention) Remove(id uint32) bool {
	e, ok := r.index[id]
	if !ok {
		return false
	}
	r.removeElement(e)
	return true
}

// Get returns the record with id.
func (r *Retention) Get(id uint32) (notify.Notification, bool) {
	e, ok := r.index[id]
	if !ok {
		return notify.Notification{}, false
	}
	return e.Value.(*retained).n, true //nolint:forcetypeassert // list only holds *retained
}

// Clear removes every record and returns how many were removed.
func (r *Retention) Clear() int {
	n := r.items.Len()
	r.items.Init()
	clear(r.index)
	r.total = 0
	return n
}

// SetBudget changes the budget, evicting as needed.
func (r *Retention) SetBudget(budget int) []notify.Notification {
	if budget <= 0 {
		budget = DefaultRetentionBytes
	}
	r.budget = budget
	return r.enforce()
}

// Snapshot returns the records newest first.
func (r *Retention) Snapshot() []notify.Notification {
	out := make([]notify.Notification, 0, r.items.Len())
	for e := r.items.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.(*retained).n) //nolint:forcetypeassert // list only holds *retained
	}
	return out
}

func (r *Retention) Len() int    { return r.items.Len() }
func (r *Retention) Total() int  { return r.total }
func (r *Retention) Budget() int { return r.budget }
