package rules

import (
	"testing"
	"time"

	"github.com/llehouerou/notifyd/internal/notify"
)

func ptr[T any](v T) *T { return &v }

func TestLookupPrecedence(t *testing.T) {
	s := New([]Rule{
		{Match: "Firefox", Enabled: true},
		{Match: "org.mozilla.firefox.desktop", Enabled: false},
	})

	tests := []struct {
		name        string
		entry, app  string
		wantMatch   string
		wantMatched bool
	}{
		{"desktop entry wins", "org.mozilla.firefox", "Firefox", "org.mozilla.firefox.desktop", true},
		{"app name fallback", "other", "firefox", "Firefox", true},
		{"no match", "", "Thunderbird", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := s.Lookup(tt.entry, tt.app)
			if ok != tt.wantMatched || r.Match != tt.wantMatch {
				t.Errorf("Lookup(%q, %q) = (%q, %v), want (%q, %v)",
					tt.entry, tt.app, r.Match, ok, tt.wantMatch, tt.wantMatched)
			}
		})
	}
}

func TestApply(t *testing.T) {
	s := New([]Rule{
		{Match: "chat", Enabled: true, Sound: false, Urgency: ptr(notify.UrgencyLow), Timeout: ptr(2 * time.Second)},
		{Match: "spam", Enabled: false},
	})

	n := notify.Notification{AppName: "chat", Hints: notify.Hints{Urgency: notify.UrgencyCritical}}
	out := s.Apply(&n)
	if !out.Matched || out.Muted || out.Sound {
		t.Errorf("Apply(chat) = %+v, want matched, unmuted, no sound", out)
	}
	if n.Hints.Urgency != notify.UrgencyLow {
		t.Errorf("urgency = %v, want low override", n.Hints.Urgency)
	}
	if out.Timeout == nil || *out.Timeout != 2*time.Second {
		t.Errorf("timeout override = %v, want 2s", out.Timeout)
	}

	spam := notify.Notification{AppName: "spam"}
	if !s.Apply(&spam).Muted {
		t.Error("Apply(spam) not muted")
	}

	other := notify.Notification{AppName: "other"}
	if out := s.Apply(&other); out.Matched || !out.Sound {
		t.Errorf("Apply(other) = %+v, want unmatched with sound", out)
	}
}

func TestNilSet(t *testing.T) {
	var s *Set
	if _, ok := s.Lookup("a", "b"); ok {
		t.Error("nil set matched")
	}
	n := notify.Notification{AppName: "x"}
	if out := s.Apply(&n); out.Muted {
		t.Error("nil set muted")
	}
}
