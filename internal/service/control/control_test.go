package control

import (
	"errors"
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
)

func TestSetBiasRejectsInvalid(t *testing.T) {
	c := NewCenter()

	cases := []struct {
		symbol   string
		bias     float64
		strength float64
	}{
		{"", 10, 0.5},
		{"EURUSD-OTC", 101, 0.5},
		{"EURUSD-OTC", -101, 0.5},
		{"EURUSD-OTC", 10, -0.1},
		{"EURUSD-OTC", 10, 1.1},
	}
	for _, tc := range cases {
		if err := c.SetBias(tc.symbol, tc.bias, tc.strength, 0); !errors.Is(err, ErrInvalidOverride) {
			t.Fatalf("SetBias(%q, %v, %v): expected ErrInvalidOverride, got %v", tc.symbol, tc.bias, tc.strength, err)
		}
	}
	if _, _, ok := c.EffectiveBias("EURUSD-OTC"); ok {
		t.Fatalf("rejected bias must not be applied")
	}
}

func TestSetVolMultiplierRejectsNonPositive(t *testing.T) {
	c := NewCenter()
	if err := c.SetVolMultiplier("EURUSD-OTC", 0, 0); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
	if err := c.SetVolMultiplier("EURUSD-OTC", -2, 0); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
}

func TestOverrideLazyExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCenter(WithClock(func() time.Time { return now }))

	if err := c.SetBias("EURUSD-OTC", 50, 1, time.Minute); err != nil {
		t.Fatalf("SetBias: %v", err)
	}
	if v, s, ok := c.EffectiveBias("EURUSD-OTC"); !ok || v != 50 || s != 1 {
		t.Fatalf("expected bias 50/1, got %v/%v ok=%v", v, s, ok)
	}

	now = now.Add(61 * time.Second)
	if _, _, ok := c.EffectiveBias("EURUSD-OTC"); ok {
		t.Fatalf("bias should have expired")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCenter(WithClock(func() time.Time { return now }))

	if err := c.SetPriceOverride("BTCUSD-OTC", 65000, 0); err != nil {
		t.Fatalf("SetPriceOverride: %v", err)
	}
	now = now.Add(1000 * time.Hour)
	if p, ok := c.EffectivePriceOverride("BTCUSD-OTC"); !ok || p != 65000 {
		t.Fatalf("expected permanent override, got %v ok=%v", p, ok)
	}
}

func TestClearOverrides(t *testing.T) {
	c := NewCenter()
	if err := c.SetVolMultiplier("EURUSD-OTC", 2, 0); err != nil {
		t.Fatalf("SetVolMultiplier: %v", err)
	}
	c.ClearOverrides("EURUSD-OTC")
	if _, ok := c.EffectiveVolMultiplier("EURUSD-OTC"); ok {
		t.Fatalf("expected cleared multiplier")
	}
}

func TestConsumeForcedPrecedence(t *testing.T) {
	c := NewCenter()
	trade := &models.TradeInfo{ID: "t1", UserID: "u1", Symbol: "EURUSD-OTC"}

	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", ForcedWins: 1}); err != nil {
		t.Fatalf("SetUserTargeting: %v", err)
	}
	if err := c.ForceTradeOutcome("t1", models.OutcomeLose); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	// The per-trade pin wins over the user counter.
	out, source, ok := c.ConsumeForced(trade)
	if !ok || out != models.OutcomeLose || source != "trade_override" {
		t.Fatalf("expected LOSE/trade_override, got %v/%v ok=%v", out, source, ok)
	}

	// The pin is one-shot; the counter services the next settlement.
	out, source, ok = c.ConsumeForced(trade)
	if !ok || out != models.OutcomeWin || source != "user_counter" {
		t.Fatalf("expected WIN/user_counter, got %v/%v ok=%v", out, source, ok)
	}

	// Counter exhausted, nothing forced.
	if _, _, ok := c.ConsumeForced(trade); ok {
		t.Fatalf("expected no forced outcome left")
	}
}

func TestConsumeForcedSymbolScopedBeforeGlobal(t *testing.T) {
	c := NewCenter()
	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", ForcedLosses: 1}); err != nil {
		t.Fatalf("global targeting: %v", err)
	}
	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", Symbol: "BTCUSD-OTC", ForcedWins: 1}); err != nil {
		t.Fatalf("scoped targeting: %v", err)
	}

	out, _, ok := c.ConsumeForced(&models.TradeInfo{ID: "t1", UserID: "u1", Symbol: "BTCUSD-OTC"})
	if !ok || out != models.OutcomeWin {
		t.Fatalf("expected scoped WIN, got %v ok=%v", out, ok)
	}
	out, _, ok = c.ConsumeForced(&models.TradeInfo{ID: "t2", UserID: "u1", Symbol: "EURUSD-OTC"})
	if !ok || out != models.OutcomeLose {
		t.Fatalf("expected global LOSE, got %v ok=%v", out, ok)
	}
}

func TestTargetWinRateSteering(t *testing.T) {
	c := NewCenter()
	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", TargetWinRate: 0.6}); err != nil {
		t.Fatalf("SetUserTargeting: %v", err)
	}
	trade := &models.TradeInfo{ID: "t1", UserID: "u1", Symbol: "EURUSD-OTC"}

	// No history yet: rate 0 < target, force a win.
	out, source, ok := c.ConsumeForced(trade)
	if !ok || out != models.OutcomeWin || source != "target_rate" {
		t.Fatalf("expected WIN/target_rate, got %v/%v ok=%v", out, source, ok)
	}

	// Three wins against one loss puts the rate above target; steering stops.
	for i := 0; i < 3; i++ {
		c.RecordOutcome("u1", "EURUSD-OTC", models.OutcomeWin)
	}
	c.RecordOutcome("u1", "EURUSD-OTC", models.OutcomeLose)
	if _, _, ok := c.ConsumeForced(trade); ok {
		t.Fatalf("rate 0.75 above target 0.6, expected no steering")
	}
}

func TestSetUserTargetingPreservesHistory(t *testing.T) {
	c := NewCenter()
	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", TargetWinRate: 0.5}); err != nil {
		t.Fatalf("SetUserTargeting: %v", err)
	}
	c.RecordOutcome("u1", "", models.OutcomeWin)
	c.RecordOutcome("u1", "", models.OutcomeLose)

	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", TargetWinRate: 0.9}); err != nil {
		t.Fatalf("replace targeting: %v", err)
	}
	got, ok := c.UserTargeting("u1", "")
	if !ok || got.Wins != 1 || got.Losses != 1 {
		t.Fatalf("expected history 1/1 preserved, got %+v ok=%v", got, ok)
	}
}

func TestForceTradeOutcomeRejectsDraw(t *testing.T) {
	c := NewCenter()
	if err := c.ForceTradeOutcome("t1", models.OutcomeDraw); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
	if err := c.ForceTradeOutcome("", models.OutcomeWin); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride for empty id, got %v", err)
	}
}

func TestClearUserTargeting(t *testing.T) {
	c := NewCenter()
	if err := c.SetUserTargeting(models.UserTargeting{UserID: "u1", ForcedWins: 2}); err != nil {
		t.Fatalf("SetUserTargeting: %v", err)
	}
	c.ClearUserTargeting("u1", "")
	if _, ok := c.UserTargeting("u1", ""); ok {
		t.Fatalf("expected targeting removed")
	}
}
