package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestAdmitWindow(t *testing.T) {
	l := New(Options{})

	for i := range DefaultLimit {
		if !l.AdmitAt("app", epoch.Add(time.Duration(i)*time.Second/2)) {
			t.Fatalf("admission %d rejected, want admitted", i+1)
		}
	}
	if l.AdmitAt("app", epoch.Add(59*time.Second)) {
		t.Error("61st admission within window admitted, want rejected")
	}

	// The first admission leaves the window after 60s.
	if !l.AdmitAt("app", epoch.Add(60*time.Second)) {
		t.Error("admission after rollover rejected, want admitted")
	}
	if l.AdmitAt("app", epoch.Add(60*time.Second)) {
		t.Error("second admission at rollover admitted, want rejected (only one slot freed)")
	}
	if !l.AdmitAt("app", epoch.Add(2*time.Minute)) {
		t.Error("admission after full window rejected, want admitted")
	}
}

func TestAdmitIndependentSenders(t *testing.T) {
	l := New(Options{Limit: 2})
	l.AdmitAt("a", epoch)
	l.AdmitAt("a", epoch)
	if l.AdmitAt("a", epoch) {
		t.Error("sender a over limit admitted")
	}
	if !l.AdmitAt("b", epoch) {
		t.Error("sender b rejected because of sender a")
	}
}

func TestRejectedAdmissionNotRecorded(t *testing.T) {
	l := New(Options{Limit: 1, Window: time.Second})
	l.AdmitAt("a", epoch)
	for i := range 10 {
		l.AdmitAt("a", epoch.Add(time.Duration(i)*time.Millisecond))
	}
	if !l.AdmitAt("a", epoch.Add(time.Second)) {
		t.Error("rejected attempts extended the window")
	}
}

func TestSenderMapBounded(t *testing.T) {
	l := New(Options{Limit: 1, MaxSenders: 3})
	for i := range 10 {
		l.AdmitAt(fmt.Sprintf("spoof-%d", i), epoch)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
}

func TestLeastRecentlySeenEvicted(t *testing.T) {
	l := New(Options{Limit: 1, MaxSenders: 2})
	l.AdmitAt("a", epoch)
	l.AdmitAt("b", epoch)
	l.AdmitAt("a", epoch) // rejected, but a is now most recently seen
	l.AdmitAt("c", epoch) // evicts b

	if l.AdmitAt("a", epoch) {
		t.Error("a was evicted, want b evicted")
	}
	if !l.AdmitAt("b", epoch) {
		t.Error("b still tracked, want evicted")
	}
}

func TestPrune(t *testing.T) {
	l := New(Options{Window: time.Minute})
	l.AdmitAt("old", epoch)
	l.AdmitAt("new", epoch.Add(50*time.Second))

	if n := l.Prune(epoch.Add(90 * time.Second)); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
	if got := l.Remaining("new", epoch.Add(90*time.Second)); got != DefaultLimit-1 {
		t.Errorf("Remaining(new) = %d, want %d", got, DefaultLimit-1)
	}
}

func TestGlobalBucket(t *testing.T) {
	l := New(Options{GlobalRate: 1, GlobalBurst: 2})
	admitted := 0
	for i := range 5 {
		if l.AdmitAt(fmt.Sprintf("s%d", i), epoch) {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("admitted %d across senders, want 2 (global burst)", admitted)
	}
	if !l.AdmitAt("s9", epoch.Add(time.Second)) {
		t.Error("global bucket did not refill")
	}
}
