// Package rules applies per-application notification policy.
package rules

import (
	"strings"
	"time"

	"github.com/llehouerou/notifyd/internal/notify"
)

// Rule is the policy for one application, matched by desktop entry or app name.
type Rule struct {
	Match   string
	Enabled bool
	Sound   bool
	// Urgency replaces the requested urgency when set.
	Urgency *notify.Urgency
	// Timeout replaces the requested timeout when set. Zero never expires.
	Timeout *time.Duration
}

// Set is an immutable collection of rules keyed case-insensitively.
type Set struct {
	byKey map[string]Rule
}

// New builds a Set. Later rules with the same key win.
func New(rules []Rule) *Set {
	s := &Set{byKey: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if r.Match == "" {
			continue
		}
		s.byKey[normalize(r.Match)] = r
	}
	return s
}

func normalize(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.TrimSuffix(key, ".desktop")
}

// Lookup finds the rule for a notification. The desktop entry takes
// precedence over the app name.
func (s *Set) Lookup(desktopEntry, appName string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	if desktopEntry != "" {
		if r, ok := s.byKey[normalize(desktopEntry)]; ok {
			return r, true
		}
	}
	if appName != "" {
		if r, ok := s.byKey[normalize(appName)]; ok {
			return r, true
		}
	}
	return Rule{}, false
}

// Len returns the number of distinct rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byKey)
}

// Outcome is the effect of the matching rule on one notification.
type Outcome struct {
	Matched bool
	Muted   bool
	Sound   bool
	Timeout *time.Duration
}

// Apply evaluates the rule for n and applies its urgency override in place.
func (s *Set) Apply(n *notify.Notification) Outcome {
	r, ok := s.Lookup(n.Hints.DesktopEntry, n.AppName)
	if !ok {
		return Outcome{Sound: true}
	}
	if r.Urgency != nil {
		n.Hints.Urgency = *r.Urgency
	}
	return Outcome{
		Matched: true,
		Muted:   !r.Enabled,
		Sound:   r.Sound,
		Timeout: r.Timeout,
	}
}
