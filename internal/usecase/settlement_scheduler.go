package usecase

import (
	"sync"
	"time"
)

// SettlementScheduler owns one cancellable timer per open trade. Cancellation
// and lookup are O(1) by trade id; a fired timer removes itself before
// invoking the settle callback.
type SettlementScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(tradeID string)
	now    func() time.Time
}

// NewSettlementScheduler creates a scheduler invoking fire when a trade's
// expiry elapses.
func NewSettlementScheduler(fire func(tradeID string)) *SettlementScheduler {
	return &SettlementScheduler{
		timers: make(map[string]*time.Timer),
		fire:   fire,
		now:    time.Now,
	}
}

// Schedule arms a timer for the trade. A trade already scheduled keeps its
// original timer; expiries in the past fire immediately.
func (s *SettlementScheduler) Schedule(tradeID string, expiresAt time.Time) {
	delay := expiresAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.timers[tradeID]; exists {
		return
	}
	s.timers[tradeID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, tradeID)
		s.mu.Unlock()
		s.fire(tradeID)
	})
}

// Cancel disarms the trade's timer. Returns false when no timer was armed or
// it had already fired.
func (s *SettlementScheduler) Cancel(tradeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[tradeID]
	if !ok {
		return false
	}
	delete(s.timers, tradeID)
	return t.Stop()
}

// Pending reports the number of armed timers.
func (s *SettlementScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer. Used on shutdown only.
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
