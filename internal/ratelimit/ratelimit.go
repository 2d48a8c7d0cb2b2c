// Package ratelimit bounds how many notifications each sender may create.
package ratelimit

import (
	"container/list"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultLimit      = 60
	DefaultWindow     = 60 * time.Second
	DefaultMaxSenders = 1000
)

// Options configures a Limiter. Zero fields take the defaults.
// GlobalRate <= 0 disables the global bucket.
type Options struct {
	Limit       int
	Window      time.Duration
	MaxSenders  int
	GlobalRate  float64
	GlobalBurst int
}

// sender tracks the admissions of one sender in a ring of timestamps.
type sender struct {
	key   string
	times []time.Time // ring, len == count of recorded admissions up to limit
	head  int
	elem  *list.Element
}

// Limiter is a per-sender sliding window limiter. The sender map is bounded
// and evicts the least recently seen sender when full. A Limiter is not safe
// for concurrent use; it is owned by the engine loop.
type Limiter struct {
	limit      int
	window     time.Duration
	maxSenders int
	global     *rate.Limiter

	senders map[string]*sender
	lru     *list.List // front = most recently seen
}

// New creates a Limiter.
func New(opts Options) *Limiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxSenders <= 0 {
		opts.MaxSenders = DefaultMaxSenders
	}
	l := &Limiter{
		limit:      opts.Limit,
		window:     opts.Window,
		maxSenders: opts.MaxSenders,
		senders:    make(map[string]*sender),
		lru:        list.New(),
	}
	if opts.GlobalRate > 0 {
		burst := max(opts.GlobalBurst, 1)
		l.global = rate.NewLimiter(rate.Limit(opts.GlobalRate), burst)
	}
	return l
}

// Admit records an admission for key at the current time.
func (l *Limiter) Admit(key string) bool {
	return l.AdmitAt(key, time.Now())
}

// AdmitAt reports whether key may create a notification at now, and records
// the admission if so.
func (l *Limiter) AdmitAt(key string, now time.Time) bool {
	s := l.touch(key)
	if len(s.times) == l.limit {
		oldest := s.times[s.head]
		if now.Sub(oldest) < l.window {
			return false
		}
	}
	if l.global != nil && !l.global.AllowN(now, 1) {
		return false
	}
	if len(s.times) < l.limit {
		s.times = append(s.times, now)
		return true
	}
	s.times[s.head] = now
	s.head = (s.head + 1) % l.limit
	return true
}

// touch returns the sender for key, creating it and evicting the least
// recently seen sender if the map is full.
func (l *Limiter) touch(key string) *sender {
	if s, ok := l.senders[key]; ok {
		l.lru.MoveToFront(s.elem)
		return s
	}
	if len(l.senders) >= l.maxSenders {
		if back := l.lru.Back(); back != nil {
			old := back.Value.(*sender) //nolint:forcetypeassert // list only holds *sender
			l.lru.Remove(back)
			delete(l.senders, old.key)
		}
	}
	s := &sender{key: key}
	s.elem = l.lru.PushFront(s)
	l.senders[key] = s
	return s
}

// Prune drops senders whose newest admission is older than the window.
// It returns the number of senders removed.
func (l *Limiter) Prune(now time.Time) int {
	removed := 0
	for e := l.lru.Back(); e != nil; {
		prev := e.Prev()
		s := e.Value.(*sender) //nolint:forcetypeassert // list only holds *sender
		if s.newest().IsZero() || now.Sub(s.newest()) >= l.window {
			l.lru.Remove(e)
			delete(l.senders, s.key)
			removed++
		}
		e = prev
	}
	return removed
}

// Len returns the number of tracked senders.
func (l *Limiter) Len() int {
	return len(l.senders)
}

// Remaining returns how many admissions key has left in the current window.
func (l *Limiter) Remaining(key string, now time.Time) int {
	s, ok := l.senders[key]
	if !ok {
		return l.limit
	}
	used := 0
	for _, t := range s.times {
		if now.Sub(t) < l.window {
			used++
		}
	}
	return l.limit - used
}

func (s *sender) newest() time.Time {
	if len(s.times) == 0 {
		return time.Time{}
	}
	i := s.head - 1
	if i < 0 {
		i = len(s.times) - 1
	}
	return s.times[i]
}
