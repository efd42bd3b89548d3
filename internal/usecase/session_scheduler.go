package usecase

import (
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
)

// BlendFunc maps anchoring progress in [0,1] to a blend weight in [0,1].
// It must be monotone with f(0)=0 and f(1)=1 so the blend never overshoots.
type BlendFunc func(progress float64) float64

// LinearBlend is the default anchoring curve.
func LinearBlend(progress float64) float64 {
	return clamp01(progress)
}

// SmoothstepBlend eases in and out of the anchoring window.
func SmoothstepBlend(progress float64) float64 {
	p := clamp01(progress)
	return p * p * (3 - 2*p)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type anchorState struct {
	startedAt time.Time
	target    models.PriceMode
}

// SessionScheduler decides the quoting mode per symbol. Forex symbols follow
// the weekly session plus feed freshness; crypto symbols follow freshness
// alone and flip modes without anchoring.
type SessionScheduler struct {
	mu         sync.Mutex
	window     time.Duration
	staleAfter time.Duration
	blend      BlendFunc
	now        func() time.Time
	lastReal   map[string]time.Time
	lastMode   map[string]models.PriceMode
	anchors    map[string]*anchorState
}

// SchedulerOption configures a SessionScheduler.
type SchedulerOption func(*SessionScheduler)

// WithBlend replaces the anchoring curve.
func WithBlend(f BlendFunc) SchedulerOption {
	return func(s *SessionScheduler) { s.blend = f }
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *SessionScheduler) { s.now = now }
}

// NewSessionScheduler creates a scheduler with the given anchoring window and
// feed staleness cutoff.
func NewSessionScheduler(window, staleAfter time.Duration, opts ...SchedulerOption) *SessionScheduler {
	s := &SessionScheduler{
		window:     window,
		staleAfter: staleAfter,
		blend:      LinearBlend,
		now:        time.Now,
		lastReal:   make(map[string]time.Time),
		lastMode:   make(map[string]models.PriceMode),
		anchors:    make(map[string]*anchorState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NoteRealPrice records the arrival time of a real quote for freshness checks.
func (s *SessionScheduler) NoteRealPrice(symbol string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastReal[symbol]) {
		s.lastReal[symbol] = at
	}
}

func (s *SessionScheduler) feedFreshLocked(symbol string, now time.Time) bool {
	last, ok := s.lastReal[symbol]
	if !ok {
		return false
	}
	return s.staleAfter <= 0 || now.Sub(last) <= s.staleAfter
}

// IsRealMarketOpen reports whether real quoting is currently possible: the
// session must be open and the feed must be fresh. A silent feed means closed.
func (s *SessionScheduler) IsRealMarketOpen(symbol string, market models.MarketClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.feedFreshLocked(symbol, now) {
		return false
	}
	if market == models.MarketForex {
		return inForexSession(now)
	}
	return true
}

// GetMarketSession describes the symbol's session, including the next flip
// times for forex. Crypto sessions carry no flip times.
func (s *SessionScheduler) GetMarketSession(symbol string, market models.MarketClass) models.MarketSession {
	open := s.IsRealMarketOpen(symbol, market)
	ms := models.MarketSession{Symbol: symbol, Open: open}
	if market == models.MarketForex {
		now := s.now().UTC()
		ms.NextOpen = nextForexOpen(now)
		ms.NextClose = nextForexClose(now)
	}
	return ms
}

// GetPriceMode resolves the quoting mode for a symbol, starting and finishing
// anchoring transitions as the desired mode flips.
func (s *SessionScheduler) GetPriceMode(symbol string, market models.MarketClass) models.PriceMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	desired := models.ModeOTC
	open := s.feedFreshLocked(symbol, now)
	if open && market == models.MarketForex {
		open = inForexSession(now)
	}
	if open {
		desired = models.ModeReal
	}

	if a, ok := s.anchors[symbol]; ok {
		if a.target != desired {
			// Market flipped back mid-transition; restart toward the new target.
			a.startedAt = now
			a.target = desired
		}
		if s.progressLocked(a, now) >= 1 {
			delete(s.anchors, symbol)
			s.lastMode[symbol] = desired
			return desired
		}
		return models.ModeAnchoring
	}

	cur, seen := s.lastMode[symbol]
	if !seen || cur == desired {
		s.lastMode[symbol] = desired
		return desired
	}
	if market == models.MarketCrypto || s.window <= 0 {
		s.lastMode[symbol] = desired
		return desired
	}
	s.anchors[symbol] = &anchorState{startedAt: now, target: desired}
	return models.ModeAnchoring
}

func (s *SessionScheduler) progressLocked(a *anchorState, now time.Time) float64 {
	if s.window <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(a.startedAt)) / float64(s.window))
}

// GetAnchoringProgress returns transition progress in [0,1]; 0 when no
// transition is active.
func (s *SessionScheduler) GetAnchoringProgress(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.anchors[symbol]
	if !ok {
		return 0
	}
	return s.progressLocked(a, s.now())
}

// GetAnchoredPrice blends the synthetic and real prices for a symbol in
// transition. At progress 0 it equals the side being left, at 1 the side
// being entered; outside a transition it returns the synthetic price.
func (s *SessionScheduler) GetAnchoredPrice(symbol string, otcPrice, realPrice float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.anchors[symbol]
	if !ok {
		return otcPrice
	}
	w := s.blend(s.progressLocked(a, s.now()))
	if a.target == models.ModeOTC {
		return realPrice + (otcPrice-realPrice)*w
	}
	return otcPrice + (realPrice-otcPrice)*w
}

// Forex trades Sunday 22:00 UTC through Friday 22:00 UTC.
func inForexSession(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 22
	case time.Friday:
		return t.Hour() < 22
	default:
		return true
	}
}

func nextForexOpen(now time.Time) time.Time {
	now = now.UTC()
	d := now
	for {
		if d.Weekday() == time.Sunday {
			open := time.Date(d.Year(), d.Month(), d.Day(), 22, 0, 0, 0, time.UTC)
			if open.After(now) {
				return open
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}

func nextForexClose(now time.Time) time.Time {
	now = now.UTC()
	d := now
	for {
		if d.Weekday() == time.Friday {
			cut := time.Date(d.Year(), d.Month(), d.Day(), 22, 0, 0, 0, time.UTC)
			if cut.After(now) {
				return cut
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}
