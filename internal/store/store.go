// Package store owns the live notifications, their ids and the retention
// queue. A Store is not safe for concurrent use; it belongs to the engine loop.
package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/rules"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxPerApp = 10
	DefaultMaxLive   = 100
)

// Policy holds the settings applied when a notification is committed.
type Policy struct {
	// DefaultTimeout is used when the caller requests the server default (-1).
	DefaultTimeout time.Duration
	// MaxTimeout caps timeouts per urgency. Zero or missing means no cap.
	MaxTimeout     map[notify.Urgency]time.Duration
	MaxPerApp      int
	MaxLive        int
	DoNotDisturb   bool
	Retention      bool
	RetentionBytes int
	Rules          *rules.Set
}

// DefaultPolicy returns the built-in defaults.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTimeout: DefaultTimeout,
		MaxTimeout: map[notify.Urgency]time.Duration{
			notify.UrgencyLow:    3 * time.Second,
			notify.UrgencyNormal: 5 * time.Second,
		},
		MaxPerApp:      DefaultMaxPerApp,
		MaxLive:        DefaultMaxLive,
		Retention:      true,
		RetentionBytes: DefaultRetentionBytes,
	}
}

// ResolveTimeout returns the expiry for a notification. Zero never expires.
// A rule override wins; -1 selects the default, which never expires for
// critical notifications; positive values are capped per urgency.
func (p *Policy) ResolveTimeout(requested int32, u notify.Urgency, override *time.Duration) time.Duration {
	if override != nil {
		return max(*override, 0)
	}
	var d time.Duration
	switch {
	case requested == 0:
		return 0
	case requested < 0:
		if u == notify.UrgencyCritical {
			return 0
		}
		d = p.DefaultTimeout
		if d <= 0 {
			d = DefaultTimeout
		}
	default:
		d = time.Duration(requested) * time.Millisecond
	}
	if limit := p.MaxTimeout[u]; limit > 0 && d > limit {
		d = limit
	}
	return d
}

type entry struct {
	n   notify.Notification
	seq uint64
}

// Outcome describes the effect of a commit.
type Outcome struct {
	Notification notify.Notification
	Replaced     bool
	// Muted notifications went straight to history and are not live.
	Muted bool
	// Evicted are live notifications pushed out by the ceilings.
	Evicted []notify.Notification
}

// Store holds live notifications and history.
type Store struct {
	policy  Policy
	alloc   *Allocator
	live    map[uint32]*entry
	history *Retention
	seq     uint64
}

// New creates a Store.
func New(p Policy) *Store {
	return &Store{
		policy:  p,
		alloc:   NewAllocator(),
		live:    make(map[uint32]*entry),
		history: NewRetention(p.RetentionBytes),
	}
}

// Policy returns the current policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// SetPolicy replaces the policy. Retention changes apply immediately;
// ceilings apply from the next commit.
func (s *Store) SetPolicy(p Policy) {
	s.policy = p
	s.history.SetBudget(p.RetentionBytes)
	if !p.Retention {
		s.history.Clear()
	}
}

// Reserve returns the id a request will use. A live or reserved
// replacesID is kept; anything else allocates a new id.
func (s *Store) Reserve(replacesID uint32) (id uint32, replacing bool) {
	if replacesID != 0 && s.alloc.InUse(replacesID) {
		return replacesID, true
	}
	return s.alloc.Allocate(), false
}

// Release frees a reserved id that was never committed.
func (s *Store) Release(id uint32) {
	if _, live := s.live[id]; !live {
		s.alloc.Release(id)
	}
}

// Upsert reserves an id for n and commits it.
func (s *Store) Upsert(n notify.Notification, replacesID uint32, now time.Time) Outcome {
	n.ID, _ = s.Reserve(replacesID)
	return s.Commit(n, now)
}

// Commit makes n, whose ID was obtained from Reserve, visible. App rules,
// timeout resolution, do-not-disturb and the ceilings are applied here.
func (s *Store) Commit(n notify.Notification, now time.Time) Outcome {
	rule := s.policy.Rules.Apply(&n)
	n.Timeout = s.policy.ResolveTimeout(n.RequestedTimeout, n.Hints.Urgency, rule.Timeout)
	n.Quiet = s.policy.DoNotDisturb && n.Hints.Urgency != notify.UrgencyCritical
	n.PlaySound = rule.Sound && n.Hints.HasSound() && !s.policy.DoNotDisturb
	n.UpdatedAt = now

	old, replacing := s.live[n.ID]
	if replacing {
		n.CreatedAt = old.n.CreatedAt
	} else {
		n.CreatedAt = now
	}

	if rule.Muted {
		if replacing {
			delete(s.live, n.ID)
		}
		s.alloc.Release(n.ID)
		s.retain(n, notify.CloseUndelivered)
		return Outcome{Notification: n, Replaced: replacing, Muted: true}
	}

	if replacing {
		old.n = n
		return Outcome{Notification: n, Replaced: true}
	}

	s.seq++
	s.live[n.ID] = &entry{n: n, seq: s.seq}
	out := Outcome{Notification: n}
	out.Evicted = s.enforceCeilings(n)
	return out
}

// enforceCeilings evicts the oldest notifications over the per-app and
// total limits, preferring non-critical ones. The just committed
// notification is never evicted.
func (s *Store) enforceCeilings(added notify.Notification) []notify.Notification {
	var evicted []notify.Notification
	if limit := s.policy.MaxPerApp; limit > 0 {
		for s.countApp(added.AppName) > limit {
			victim, ok := s.oldest(added.ID, func(n *notify.Notification) bool {
				return n.AppName == added.AppName
			})
			if !ok {
				break
			}
			evicted = append(evicted, s.evict(victim))
		}
	}
	if limit := s.policy.MaxLive; limit > 0 {
		for len(s.live) > limit {
			victim, ok := s.oldest(added.ID, func(*notify.Notification) bool { return true })
			if !ok {
				break
			}
			evicted = append(evicted, s.evict(victim))
		}
	}
	return evicted
}

func (s *Store) countApp(app string) int {
	count := 0
	for _, e := range s.live {
		if e.n.AppName == app {
			count++
		}
	}
	return count
}

// oldest returns the id of the oldest matching live notification other than
// skip, preferring non-critical ones.
func (s *Store) oldest(skip uint32, match func(*notify.Notification) bool) (uint32, bool) {
	var best *entry
	better := func(e *entry) bool {
		if best == nil {
			return true
		}
		eCrit := e.n.Hints.Urgency == notify.UrgencyCritical
		bCrit := best.n.Hints.Urgency == notify.UrgencyCritical
		if eCrit != bCrit {
			return !eCrit
		}
		return e.seq < best.seq
	}
	for id, e := range s.live {
		if id == skip || !match(&e.n) {
			continue
		}
		if better(e) {
			best = e
		}
	}
	if best == nil {
		return 0, false
	}
	return best.n.ID, true
}

func (s *Store) evict(id uint32) notify.Notification {
	n, _ := s.Close(id, notify.CloseUndelivered)
	return n
}

// Close removes a live notification. Expired and undelivered records are
// kept in history unless transient or retention is disabled.
func (s *Store) Close(id uint32, reason notify.CloseReason) (notify.Notification, bool) {
	e, ok := s.live[id]
	if !ok {
		return notify.Notification{}, false
	}
	delete(s.live, id)
	s.alloc.Release(id)
	s.retain(e.n, reason)
	return e.n, true
}

func (s *Store) retain(n notify.Notification, reason notify.CloseReason) {
	if !s.policy.Retention || !reason.Retained() || n.Hints.Transient {
		return
	}
	s.history.Push(n)
}

// Get returns a live notification.
func (s *Store) Get(id uint32) (notify.Notification, bool) {
	e, ok := s.live[id]
	if !ok {
		return notify.Notification{}, false
	}
	return e.n, true
}

// IsLive reports whether id is a committed live notification.
func (s *Store) IsLive(id uint32) bool {
	_, ok := s.live[id]
	return ok
}

// IsReserved reports whether id is reserved or live.
func (s *Store) IsReserved(id uint32) bool {
	return s.alloc.InUse(id)
}

// Len returns the number of live notifications.
func (s *Store) Len() int {
	return len(s.live)
}

func (s *Store) entries() []*entry {
	out := make([]*entry, 0, len(s.live))
	for _, e := range s.live {
		out = append(out, e)
	}
	return out
}

// Live returns the live notifications, newest first.
func (s *Store) Live() []notify.Notification {
	es := s.entries()
	slices.SortFunc(es, func(a, b *entry) int { return cmp.Compare(b.seq, a.seq) })
	return values(es)
}

// Visible returns the live notifications in presentation order: by urgency,
// most urgent first, then newest first.
func (s *Store) Visible() []notify.Notification {
	es := s.entries()
	slices.SortFunc(es, func(a, b *entry) int {
		if c := cmp.Compare(b.n.Hints.Urgency, a.n.Hints.Urgency); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	return values(es)
}

// Groups returns the live notifications grouped by mode.
func (s *Store) Groups(mode notify.GroupingMode) []notify.Group {
	return notify.GroupNotifications(s.Live(), mode)
}

// History returns retained notifications, newest first.
func (s *Store) History() []notify.Notification {
	return s.history.Snapshot()
}

// HistoryRecord returns one retained notification.
func (s *Store) HistoryRecord(id uint32) (notify.Notification, bool) {
	return s.history.Get(id)
}

// RemoveHistory deletes one retained notification.
func (s *Store) RemoveHistory(id uint32) bool {
	return s.history.Remove(id)
}

// ClearHistory deletes all retained notifications.
func (s *Store) ClearHistory() int {
	return s.history.Clear()
}

// HistoryBytes returns the estimated size of the history.
func (s *Store) HistoryBytes() int {
	return s.history.Total()
}

func values(es []*entry) []notify.Notification {
	out := make([]notify.Notification, len(es))
	for i, e := range es {
		out[i] = e.n
	}
	return out
}
