package usecase

import (
	"testing"
	"time"
)

func TestSchedulerFiresOnExpiry(t *testing.T) {
	fired := make(chan string, 1)
	s := NewSettlementScheduler(func(id string) { fired <- id })
	defer s.Stop()

	s.Schedule("t1", time.Now().Add(20*time.Millisecond))
	select {
	case id := <-fired:
		if id != "t1" {
			t.Fatalf("fired %q, want t1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("fired timer must remove itself, pending=%d", s.Pending())
	}
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	fired := make(chan string, 1)
	s := NewSettlementScheduler(func(id string) { fired <- id })
	defer s.Stop()

	s.Schedule("t1", time.Now().Add(time.Hour))
	if !s.Cancel("t1") {
		t.Fatalf("expected cancel to succeed")
	}
	if s.Cancel("t1") {
		t.Fatalf("second cancel must report no timer")
	}
	if s.Pending() != 0 {
		t.Fatalf("pending=%d, want 0", s.Pending())
	}
	select {
	case id := <-fired:
		t.Fatalf("cancelled timer fired %q", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerKeepsOriginalTimer(t *testing.T) {
	fired := make(chan string, 2)
	s := NewSettlementScheduler(func(id string) { fired <- id })
	defer s.Stop()

	s.Schedule("t1", time.Now().Add(20*time.Millisecond))
	s.Schedule("t1", time.Now().Add(time.Hour)) // ignored

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("original timer was replaced")
	}
}

func TestSchedulerPastExpiryFiresImmediately(t *testing.T) {
	fired := make(chan string, 1)
	s := NewSettlementScheduler(func(id string) { fired <- id })
	defer s.Stop()

	s.Schedule("t1", time.Now().Add(-time.Minute))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("past expiry must fire immediately")
	}
}

func TestSchedulerStopDisarmsAll(t *testing.T) {
	fired := make(chan string, 4)
	s := NewSettlementScheduler(func(id string) { fired <- id })

	s.Schedule("a", time.Now().Add(time.Hour))
	s.Schedule("b", time.Now().Add(time.Hour))
	if s.Pending() != 2 {
		t.Fatalf("pending=%d, want 2", s.Pending())
	}
	s.Stop()
	if s.Pending() != 0 {
		t.Fatalf("stop must disarm every timer, pending=%d", s.Pending())
	}
}
