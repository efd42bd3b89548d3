package usecase

import (
	"math"
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/service/control"
)

// flatConfig keeps the GARCH recursion at base volatility so tests can
// reason about shocks exactly: omega=0, alpha=0, beta=1.
func flatConfig(symbol string) *models.PriceConfig {
	return &models.PriceConfig{
		Symbol:         symbol,
		Market:         models.MarketCrypto,
		PipSize:        0.01,
		BaseVolatility: 0.01,

		VolatilityMultiplier: 1,
		GarchBeta:            1,
		HistorySize:          50,
	}
}

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestGenerateNextPriceUninitialized(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter())
	if tick := g.GenerateNextPrice("NOPE"); tick != nil {
		t.Fatalf("expected nil tick for unknown symbol, got %+v", tick)
	}
	if tick := g.GetRealBasedPrice("NOPE", 100); tick != nil {
		t.Fatalf("expected nil real-based tick for unknown symbol")
	}
}

func TestDeviationCap(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 10 }))
	cfg := flatConfig("BTCUSD-OTC")
	cfg.MaxDeviationPct = 1
	g.Initialize(cfg, 100)

	// shock = 10 * 0.01 = +10% raw, capped at anchor +1%.
	tick := g.GenerateNextPrice("BTCUSD-OTC")
	if tick == nil {
		t.Fatalf("expected tick")
	}
	if !approx(tick.Price, 101, 1e-9) {
		t.Fatalf("expected price capped at 101, got %v", tick.Price)
	}
}

func TestBiasPushesDirection(t *testing.T) {
	ctl := control.NewCenter()
	g := NewPriceGenerator(ctl, WithNormSource(func() float64 { return 0 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)

	if err := ctl.SetBias("BTCUSD-OTC", 100, 1, 0); err != nil {
		t.Fatalf("SetBias: %v", err)
	}
	up := g.GenerateNextPrice("BTCUSD-OTC")
	if up.Price <= 100 {
		t.Fatalf("positive bias should push price up, got %v", up.Price)
	}

	if err := ctl.SetBias("BTCUSD-OTC", -100, 1, 0); err != nil {
		t.Fatalf("SetBias: %v", err)
	}
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)
	down := g.GenerateNextPrice("BTCUSD-OTC")
	if down.Price >= 100 {
		t.Fatalf("negative bias should push price down, got %v", down.Price)
	}
}

func TestPriceOverridePinsEmission(t *testing.T) {
	ctl := control.NewCenter()
	g := NewPriceGenerator(ctl, WithNormSource(func() float64 { return 3 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)

	if err := ctl.SetPriceOverride("BTCUSD-OTC", 123.45, 0); err != nil {
		t.Fatalf("SetPriceOverride: %v", err)
	}
	for i := 0; i < 3; i++ {
		tick := g.GenerateNextPrice("BTCUSD-OTC")
		if !approx(tick.Price, 123.45, 1e-9) {
			t.Fatalf("expected pinned price 123.45, got %v", tick.Price)
		}
	}
}

func TestVolMultiplierScalesShock(t *testing.T) {
	ctl := control.NewCenter()
	g := NewPriceGenerator(ctl, WithNormSource(func() float64 { return 1 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)
	base := g.GenerateNextPrice("BTCUSD-OTC").Price - 100

	if err := ctl.SetVolMultiplier("BTCUSD-OTC", 5, 0); err != nil {
		t.Fatalf("SetVolMultiplier: %v", err)
	}
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)
	scaled := g.GenerateNextPrice("BTCUSD-OTC").Price - 100
	if !approx(scaled, 5*base, 1e-6) {
		t.Fatalf("expected shock scaled x5: base=%v scaled=%v", base, scaled)
	}
}

func TestBidAskSpread(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0 }))
	cfg := flatConfig("BTCUSD-OTC")
	cfg.SpreadPips = 2
	g.Initialize(cfg, 100)

	tick := g.GenerateNextPrice("BTCUSD-OTC")
	if !approx(tick.Bid, tick.Price-0.01, 1e-9) || !approx(tick.Ask, tick.Price+0.01, 1e-9) {
		t.Fatalf("expected bid/ask one pip around %v, got %v/%v", tick.Price, tick.Bid, tick.Ask)
	}
}

func TestEmissionRoundsToPip(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0.123 }))
	cfg := flatConfig("EURUSD-OTC")
	cfg.PipSize = 0.0001
	g.Initialize(cfg, 1.08503)

	tick := g.GenerateNextPrice("EURUSD-OTC")
	scaled := tick.Price / 0.0001
	if !approx(scaled, math.Round(scaled), 1e-6) {
		t.Fatalf("price %v is not pip-aligned", tick.Price)
	}
}

func TestHistoryBounded(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0.5 }))
	cfg := flatConfig("BTCUSD-OTC")
	cfg.HistorySize = 5
	g.Initialize(cfg, 100)

	for i := 0; i < 12; i++ {
		g.GenerateNextPrice("BTCUSD-OTC")
	}
	st, ok := g.State("BTCUSD-OTC")
	if !ok {
		t.Fatalf("expected state")
	}
	if len(st.History) != 5 {
		t.Fatalf("expected history bounded at 5, got %d", len(st.History))
	}
	for i := 1; i < len(st.History); i++ {
		if st.History[i].At.Before(st.History[i-1].At) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestStepThenEmitWritesSingleQuote(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)

	if _, ok := g.StepOTC("NOPE"); ok {
		t.Fatalf("expected no step for unknown symbol")
	}
	if _, ok := g.StepOTC("BTCUSD-OTC"); !ok {
		t.Fatalf("expected step for initialized symbol")
	}
	tick := g.EmitAt("BTCUSD-OTC", 102.5, models.ModeAnchoring)
	if tick == nil {
		t.Fatalf("expected tick")
	}

	st, _ := g.State("BTCUSD-OTC")
	if len(st.History) != 1 {
		t.Fatalf("expected one history point per step, got %d", len(st.History))
	}
	if st.History[0].Price != 102.5 {
		t.Fatalf("history holds %v, want the broadcast 102.5", st.History[0].Price)
	}
	// Change is against the last broadcast quote, not the internal step.
	if !approx(tick.Change, 2.5, 1e-9) {
		t.Fatalf("change = %v, want 2.5 from the prior quote at 100", tick.Change)
	}
}

func TestUpdateRealPriceMovesAnchor(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)

	at := time.Now()
	if !g.UpdateRealPrice("BTCUSD-OTC", 110, at) {
		t.Fatalf("expected real price accepted")
	}
	st, _ := g.State("BTCUSD-OTC")
	if st.AnchorPrice != 110 || st.LastRealPrice != 110 {
		t.Fatalf("expected anchor to follow real price, got %+v", st)
	}
	if g.UpdateRealPrice("BTCUSD-OTC", -5, at) {
		t.Fatalf("non-positive real price must be rejected")
	}
	if g.UpdateRealPrice("NOPE", 110, at) {
		t.Fatalf("unknown symbol must be rejected")
	}
}

func TestGetRealBasedPriceTracksQuote(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 0 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)

	tick := g.GetRealBasedPrice("BTCUSD-OTC", 105)
	if tick == nil || tick.Mode != models.ModeReal {
		t.Fatalf("expected real-mode tick, got %+v", tick)
	}
	if !approx(tick.Price, 105, 1e-9) {
		t.Fatalf("zero noise should mirror the quote, got %v", tick.Price)
	}
}

func TestReloadPreservesState(t *testing.T) {
	g := NewPriceGenerator(control.NewCenter(), WithNormSource(func() float64 { return 1 }))
	g.Initialize(flatConfig("BTCUSD-OTC"), 100)
	g.GenerateNextPrice("BTCUSD-OTC")
	before, _ := g.State("BTCUSD-OTC")

	cfg := flatConfig("BTCUSD-OTC")
	cfg.SpreadPips = 10
	if !g.Reload(cfg) {
		t.Fatalf("expected reload to succeed")
	}
	after, _ := g.State("BTCUSD-OTC")
	if after.CurrentPrice != before.CurrentPrice {
		t.Fatalf("reload must not touch live state: %v != %v", after.CurrentPrice, before.CurrentPrice)
	}
	if g.Reload(flatConfig("NOPE")) {
		t.Fatalf("reload of unknown symbol must fail")
	}
}
