package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/rules"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func note(app string, u notify.Urgency) notify.Notification {
	return notify.Notification{AppName: app, Summary: app, RequestedTimeout: -1, Hints: notify.Hints{Urgency: u}}
}

func TestUpsertAllocatesNewIDs(t *testing.T) {
	s := New(DefaultPolicy())
	seen := map[uint32]bool{}
	for i := range 10 {
		out := s.Upsert(note("app", notify.UrgencyNormal), 0, t0)
		if seen[out.Notification.ID] {
			t.Fatalf("id %d reused on upsert %d", out.Notification.ID, i)
		}
		seen[out.Notification.ID] = true
		if out.Replaced {
			t.Errorf("upsert %d reported replaced", i)
		}
	}
}

func TestUpsertReplacesLive(t *testing.T) {
	s := New(DefaultPolicy())
	first := s.Upsert(note("app", notify.UrgencyNormal), 0, t0)
	id := first.Notification.ID

	n := note("app", notify.UrgencyNormal)
	n.Summary = "updated"
	out := s.Upsert(n, id, t0.Add(time.Second))

	assert.True(t, out.Replaced)
	assert.Equal(t, id, out.Notification.ID)
	assert.Equal(t, t0, out.Notification.CreatedAt, "creation time preserved")
	assert.Equal(t, t0.Add(time.Second), out.Notification.UpdatedAt)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "updated", got.Summary)
}

func TestUpsertClosedIDAllocatesNew(t *testing.T) {
	s := New(DefaultPolicy())
	id := s.Upsert(note("app", notify.UrgencyNormal), 0, t0).Notification.ID
	_, ok := s.Close(id, notify.CloseDismissed)
	require.True(t, ok)

	out := s.Upsert(note("app", notify.UrgencyNormal), id, t0)
	assert.False(t, out.Replaced)
	assert.NotEqual(t, id, out.Notification.ID)
}

func TestCloseRetention(t *testing.T) {
	tests := []struct {
		reason    notify.CloseReason
		transient bool
		retained  bool
	}{
		{notify.CloseExpired, false, true},
		{notify.CloseUndelivered, false, true},
		{notify.CloseDismissed, false, false},
		{notify.CloseCallerClosed, false, false},
		{notify.CloseExpired, true, false},
	}
	for _, tt := range tests {
		s := New(DefaultPolicy())
		n := note("app", notify.UrgencyNormal)
		n.Hints.Transient = tt.transient
		id := s.Upsert(n, 0, t0).Notification.ID

		closed, ok := s.Close(id, tt.reason)
		require.True(t, ok)
		assert.Equal(t, id, closed.ID)
		assert.False(t, s.IsLive(id))
		assert.Equal(t, tt.retained, len(s.History()) == 1, "reason %v transient %v", tt.reason, tt.transient)
	}
}

func TestCloseUnknown(t *testing.T) {
	s := New(DefaultPolicy())
	_, ok := s.Close(42, notify.CloseCallerClosed)
	assert.False(t, ok)
}

func TestPerAppCeiling(t *testing.T) {
	p := DefaultPolicy()
	p.MaxPerApp = 2
	s := New(p)

	crit := s.Upsert(note("chat", notify.UrgencyCritical), 0, t0).Notification.ID
	normal := s.Upsert(note("chat", notify.UrgencyNormal), 0, t0).Notification.ID
	s.Upsert(note("other", notify.UrgencyNormal), 0, t0)

	out := s.Upsert(note("chat", notify.UrgencyNormal), 0, t0)
	require.Len(t, out.Evicted, 1)
	assert.Equal(t, normal, out.Evicted[0].ID, "oldest non-critical evicted first")
	assert.True(t, s.IsLive(crit))
	assert.Equal(t, 3, s.Len())

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, normal, hist[0].ID, "evicted notification kept in history")
}

func TestTotalCeiling(t *testing.T) {
	p := DefaultPolicy()
	p.MaxLive = 3
	p.MaxPerApp = 0
	s := New(p)
	var ids []uint32
	for range 5 {
		ids = append(ids, s.Upsert(note("a", notify.UrgencyLow), 0, t0).Notification.ID)
	}
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.IsLive(ids[0]))
	assert.False(t, s.IsLive(ids[1]))
	assert.True(t, s.IsLive(ids[4]))
}

func TestVisibleOrder(t *testing.T) {
	s := New(DefaultPolicy())
	low := s.Upsert(note("a", notify.UrgencyLow), 0, t0).Notification.ID
	crit := s.Upsert(note("b", notify.UrgencyCritical), 0, t0).Notification.ID
	n1 := s.Upsert(note("c", notify.UrgencyNormal), 0, t0).Notification.ID
	n2 := s.Upsert(note("d", notify.UrgencyNormal), 0, t0).Notification.ID

	var got []uint32
	for _, n := range s.Visible() {
		got = append(got, n.ID)
	}
	assert.Equal(t, []uint32{crit, n2, n1, low}, got)
}

func TestResolveTimeout(t *testing.T) {
	p := DefaultPolicy()
	p.MaxTimeout[notify.UrgencyCritical] = 0
	override := 7 * time.Second
	zero := time.Duration(0)

	tests := []struct {
		name      string
		requested int32
		urgency   notify.Urgency
		override  *time.Duration
		want      time.Duration
	}{
		{"default normal", -1, notify.UrgencyNormal, nil, 5 * time.Second},
		{"default low capped", -1, notify.UrgencyLow, nil, 3 * time.Second},
		{"default critical never", -1, notify.UrgencyCritical, nil, 0},
		{"zero never", 0, notify.UrgencyNormal, nil, 0},
		{"explicit under cap", 2000, notify.UrgencyNormal, nil, 2 * time.Second},
		{"explicit over cap", 60000, notify.UrgencyNormal, nil, 5 * time.Second},
		{"critical uncapped", 60000, notify.UrgencyCritical, nil, time.Minute},
		{"override wins", 1000, notify.UrgencyNormal, &override, 7 * time.Second},
		{"override never", -1, notify.UrgencyNormal, &zero, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ResolveTimeout(tt.requested, tt.urgency, tt.override); got != tt.want {
				t.Errorf("ResolveTimeout(%d, %v) = %v, want %v", tt.requested, tt.urgency, got, tt.want)
			}
		})
	}
}

func TestRulesAppliedAtCommit(t *testing.T) {
	low := notify.UrgencyLow
	timeout := 9 * time.Second
	p := DefaultPolicy()
	p.MaxTimeout = nil
	p.Rules = rules.New([]rules.Rule{
		{Match: "muted", Enabled: false},
		{Match: "quiet.desktop", Enabled: true, Sound: false, Urgency: &low, Timeout: &timeout},
	})
	s := New(p)

	muted := s.Upsert(note("muted", notify.UrgencyNormal), 0, t0)
	assert.True(t, muted.Muted)
	assert.False(t, s.IsLive(muted.Notification.ID))
	require.Len(t, s.History(), 1, "muted notification goes to history")

	n := note("Quiet App", notify.UrgencyCritical)
	n.Hints.DesktopEntry = "quiet"
	n.Hints.SoundName = "message-new-instant"
	out := s.Upsert(n, 0, t0)
	assert.Equal(t, notify.UrgencyLow, out.Notification.Hints.Urgency)
	assert.Equal(t, timeout, out.Notification.Timeout)
	assert.False(t, out.Notification.PlaySound)
}

func TestDoNotDisturb(t *testing.T) {
	p := DefaultPolicy()
	p.DoNotDisturb = true
	s := New(p)

	n := note("a", notify.UrgencyNormal)
	n.Hints.SoundName = "bell"
	normal := s.Upsert(n, 0, t0).Notification
	assert.True(t, normal.Quiet)
	assert.False(t, normal.PlaySound)

	crit := s.Upsert(note("a", notify.UrgencyCritical), 0, t0).Notification
	assert.False(t, crit.Quiet)
}

func TestReserveRelease(t *testing.T) {
	s := New(DefaultPolicy())
	id, replacing := s.Reserve(0)
	assert.False(t, replacing)
	assert.True(t, s.IsReserved(id))
	assert.False(t, s.IsLive(id))

	again, replacing := s.Reserve(id)
	assert.True(t, replacing, "reserved id can be replaced before commit")
	assert.Equal(t, id, again)

	s.Release(id)
	assert.False(t, s.IsReserved(id))
}

func TestSetPolicyDisablesRetention(t *testing.T) {
	s := New(DefaultPolicy())
	id := s.Upsert(note("a", notify.UrgencyNormal), 0, t0).Notification.ID
	s.Close(id, notify.CloseExpired)
	require.Len(t, s.History(), 1)

	p := DefaultPolicy()
	p.Retention = false
	s.SetPolicy(p)
	assert.Empty(t, s.History())
}
