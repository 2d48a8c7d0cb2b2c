package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/notify"
)

func sized(id uint32, bodyBytes int) notify.Notification {
	return notify.Notification{ID: id, Body: strings.Repeat("x", bodyBytes)}
}

func TestRetentionEvictsOldest(t *testing.T) {
	base := sized(1, 0)
	one := base.EstimatedSize()
	r := NewRetention(3 * one)

	r.Push(sized(1, 0))
	r.Push(sized(2, 0))
	r.Push(sized(3, 0))
	assert.Equal(t, 3, r.Len())

	evicted := r.Push(sized(4, 0))
	require.Len(t, evicted, 1)
	assert.Equal(t, uint32(1), evicted[0].ID)
	assert.Equal(t, 3*one, r.Total())

	ids := []uint32{}
	for _, n := range r.Snapshot() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []uint32{4, 3, 2}, ids)
}

func TestRetentionNeverExceedsBudget(t *testing.T) {
	const budget = 50 << 20
	r := NewRetention(budget)
	for i := range 200 {
		r.Push(sized(uint32(i+1), 1<<20))
		if r.Total() > budget {
			t.Fatalf("after push %d total %d exceeds budget %d", i, r.Total(), budget)
		}
	}
	assert.Less(t, r.Len(), 200)
	assert.Greater(t, r.Len(), 40)
}

func TestRetentionOversizedEntry(t *testing.T) {
	r := NewRetention(1000)
	r.Push(sized(1, 10))
	evicted := r.Push(sized(2, 5000))
	assert.Len(t, evicted, 2)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Total())
}

func TestRetentionRemoveAndClear(t *testing.T) {
	r := NewRetention(0)
	r.Push(sized(1, 10))
	r.Push(sized(2, 20))

	assert.True(t, r.Remove(1))
	assert.False(t, r.Remove(1))
	want := sized(2, 20)
	assert.Equal(t, want.EstimatedSize(), r.Total())

	_, ok := r.Get(2)
	assert.True(t, ok)

	assert.Equal(t, 1, r.Clear())
	assert.Equal(t, 0, r.Total())
	assert.Empty(t, r.Snapshot())
}

func TestRetentionDuplicateIDReplaces(t *testing.T) {
	r := NewRetention(0)
	r.Push(sized(7, 10))
	r.Push(sized(7, 20))
	assert.Equal(t, 1, r.Len())
	want := sized(7, 20)
	assert.Equal(t, want.EstimatedSize(), r.Total())
}

func TestRetentionSetBudget(t *testing.T) {
	base := sized(1, 0)
	one := base.EstimatedSize()
	r := NewRetention(10 * one)
	for i := range 5 {
		r.Push(sized(uint32(i+1), 0))
	}
	evicted := r.SetBudget(2 * one)
	assert.Len(t, evicted, 3)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2*one, r.Budget())
}
