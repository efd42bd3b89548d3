package usecase

import (
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
)

// Wednesday noon UTC, well inside the forex week.
var midweek = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func TestCryptoFlipsWithoutAnchoring(t *testing.T) {
	now := midweek
	s := NewSessionScheduler(10*time.Second, 30*time.Second, WithSchedulerClock(func() time.Time { return now }))

	if mode := s.GetPriceMode("BTCUSD-OTC", models.MarketCrypto); mode != models.ModeOTC {
		t.Fatalf("no feed yet, expected otc, got %v", mode)
	}

	s.NoteRealPrice("BTCUSD-OTC", now)
	if mode := s.GetPriceMode("BTCUSD-OTC", models.MarketCrypto); mode != models.ModeReal {
		t.Fatalf("crypto must flip to real without anchoring, got %v", mode)
	}

	now = now.Add(31 * time.Second)
	if mode := s.GetPriceMode("BTCUSD-OTC", models.MarketCrypto); mode != models.ModeOTC {
		t.Fatalf("stale feed must flip crypto back to otc, got %v", mode)
	}
}

func TestForexAnchorsIntoRealMode(t *testing.T) {
	now := midweek
	s := NewSessionScheduler(10*time.Second, time.Minute, WithSchedulerClock(func() time.Time { return now }))

	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeOTC {
		t.Fatalf("expected otc before any quote, got %v", mode)
	}

	s.NoteRealPrice("EURUSD-OTC", now)
	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeAnchoring {
		t.Fatalf("expected anchoring toward real, got %v", mode)
	}

	now = now.Add(5 * time.Second)
	p := s.GetAnchoringProgress("EURUSD-OTC")
	if !approx(p, 0.5, 1e-9) {
		t.Fatalf("expected progress 0.5, got %v", p)
	}
	if got := s.GetAnchoredPrice("EURUSD-OTC", 100, 110); !approx(got, 105, 1e-9) {
		t.Fatalf("expected midpoint blend 105, got %v", got)
	}

	now = now.Add(5 * time.Second)
	s.NoteRealPrice("EURUSD-OTC", now)
	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeReal {
		t.Fatalf("window elapsed, expected real, got %v", mode)
	}
	if p := s.GetAnchoringProgress("EURUSD-OTC"); p != 0 {
		t.Fatalf("finished transition must report zero progress, got %v", p)
	}
}

func TestAnchoringRetargetsWhenMarketFlipsBack(t *testing.T) {
	now := midweek
	s := NewSessionScheduler(10*time.Second, 4*time.Second, WithSchedulerClock(func() time.Time { return now }))

	s.GetPriceMode("EURUSD-OTC", models.MarketForex) // otc
	s.NoteRealPrice("EURUSD-OTC", now)
	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeAnchoring {
		t.Fatalf("expected anchoring, got %v", mode)
	}

	// Feed goes silent mid-transition; the anchor restarts toward otc.
	now = now.Add(5 * time.Second)
	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeAnchoring {
		t.Fatalf("expected restarted anchoring, got %v", mode)
	}
	if p := s.GetAnchoringProgress("EURUSD-OTC"); p > 0.01 {
		t.Fatalf("retarget must reset progress, got %v", p)
	}
	// Blending toward otc now: progress 0 sits on the real side.
	if got := s.GetAnchoredPrice("EURUSD-OTC", 100, 110); !approx(got, 110, 1e-9) {
		t.Fatalf("expected blend to start from real price, got %v", got)
	}

	now = now.Add(11 * time.Second)
	if mode := s.GetPriceMode("EURUSD-OTC", models.MarketForex); mode != models.ModeOTC {
		t.Fatalf("expected otc after restarted window, got %v", mode)
	}
}

func TestAnchoredPriceOutsideTransition(t *testing.T) {
	s := NewSessionScheduler(10*time.Second, time.Minute)
	if got := s.GetAnchoredPrice("EURUSD-OTC", 100, 110); got != 100 {
		t.Fatalf("no transition active, expected otc price, got %v", got)
	}
}

func TestForexSessionBoundaries(t *testing.T) {
	cases := []struct {
		at   time.Time
		open bool
	}{
		{time.Date(2026, 8, 28, 21, 59, 0, 0, time.UTC), true},  // Friday before close
		{time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC), false},  // Friday close
		{time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), false},  // Saturday
		{time.Date(2026, 8, 30, 21, 59, 0, 0, time.UTC), false}, // Sunday before open
		{time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC), true},   // Sunday open
		{midweek, true},
	}
	for _, tc := range cases {
		if got := inForexSession(tc.at); got != tc.open {
			t.Fatalf("inForexSession(%v) = %v, want %v", tc.at, got, tc.open)
		}
	}
}

func TestIsRealMarketOpenRequiresFreshFeed(t *testing.T) {
	now := midweek
	s := NewSessionScheduler(0, 30*time.Second, WithSchedulerClock(func() time.Time { return now }))

	if s.IsRealMarketOpen("EURUSD-OTC", models.MarketForex) {
		t.Fatalf("silent feed must read as closed")
	}
	s.NoteRealPrice("EURUSD-OTC", now)
	if !s.IsRealMarketOpen("EURUSD-OTC", models.MarketForex) {
		t.Fatalf("fresh feed inside session must read as open")
	}

	// Fresh feed but outside session hours.
	now = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) // Saturday
	s.NoteRealPrice("EURUSD-OTC", now)
	if s.IsRealMarketOpen("EURUSD-OTC", models.MarketForex) {
		t.Fatalf("saturday must read as closed regardless of feed")
	}
	if !s.IsRealMarketOpen("EURUSD-OTC", models.MarketCrypto) {
		t.Fatalf("crypto ignores session hours")
	}
}

func TestGetMarketSessionForexFlipTimes(t *testing.T) {
	now := midweek
	s := NewSessionScheduler(0, 30*time.Second, WithSchedulerClock(func() time.Time { return now }))

	ms := s.GetMarketSession("EURUSD-OTC", models.MarketForex)
	wantClose := time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC)
	wantOpen := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	if !ms.NextClose.Equal(wantClose) {
		t.Fatalf("next close = %v, want %v", ms.NextClose, wantClose)
	}
	if !ms.NextOpen.Equal(wantOpen) {
		t.Fatalf("next open = %v, want %v", ms.NextOpen, wantOpen)
	}

	crypto := s.GetMarketSession("BTCUSD-OTC", models.MarketCrypto)
	if !crypto.NextOpen.IsZero() || !crypto.NextClose.IsZero() {
		t.Fatalf("crypto session must carry no flip times: %+v", crypto)
	}
}

func TestBlendCurves(t *testing.T) {
	if LinearBlend(-1) != 0 || LinearBlend(2) != 1 || LinearBlend(0.25) != 0.25 {
		t.Fatalf("linear blend misbehaves")
	}
	if SmoothstepBlend(0) != 0 || SmoothstepBlend(1) != 1 {
		t.Fatalf("smoothstep must hit both endpoints")
	}
	if got := SmoothstepBlend(0.5); !approx(got, 0.5, 1e-9) {
		t.Fatalf("smoothstep midpoint = %v, want 0.5", got)
	}
	prev := 0.0
	for p := 0.0; p <= 1.0; p += 0.1 {
		cur := SmoothstepBlend(p)
		if cur < prev {
			t.Fatalf("smoothstep not monotone at %v", p)
		}
		prev = cur
	}
}
