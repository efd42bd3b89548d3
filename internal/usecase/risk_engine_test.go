package usecase

import (
	"context"
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/service/control"
	"QuoteForge/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testRiskConfig() *models.RiskConfig {
	return &models.RiskConfig{
		Symbol:              "EURUSD-OTC",
		Enabled:             true,
		ExposureThreshold:   0.3,
		MinInterventionRate: 0.1,
		MaxInterventionRate: 0.8,
		SpreadMultiplier:    3,
		PipSize:             0.0001,
		PayoutPct:           0.85,
	}
}

func upTrade(id string, amount, entry float64) *models.TradeInfo {
	return &models.TradeInfo{
		ID: id, UserID: "u-" + id, Symbol: "EURUSD-OTC",
		Amount: amount, EntryPrice: entry, Direction: models.DirectionUp,
		PlacedAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute),
	}
}

func downTrade(id string, amount, entry float64) *models.TradeInfo {
	tr := upTrade(id, amount, entry)
	tr.Direction = models.DirectionDown
	return tr
}

func TestLinearRateCurve(t *testing.T) {
	if got := LinearRateCurve(0.2, 0.3, 0.1, 0.8); got != 0.1 {
		t.Fatalf("below threshold: got %v, want min", got)
	}
	if got := LinearRateCurve(1, 0.3, 0.1, 0.8); !approx(got, 0.8, 1e-9) {
		t.Fatalf("full exposure: got %v, want max", got)
	}
	if got := LinearRateCurve(0.65, 0.3, 0.1, 0.8); !approx(got, 0.45, 1e-9) {
		t.Fatalf("midpoint: got %v, want 0.45", got)
	}
	prev := 0.0
	for r := 0.3; r <= 1.0; r += 0.05 {
		cur := LinearRateCurve(r, 0.3, 0.1, 0.8)
		if cur < prev {
			t.Fatalf("curve not monotone at ratio %v", r)
		}
		prev = cur
	}
}

func TestExposureComputation(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	e.TrackTrade(upTrade("a", 300, 1.085))
	e.TrackTrade(downTrade("b", 100, 1.085))

	exp := e.GetExposure("EURUSD-OTC")
	if exp.TotalUpAmount != 300 || exp.TotalDownAmount != 100 {
		t.Fatalf("unexpected totals: %+v", exp)
	}
	if !approx(exp.ExposureRatio, 0.5, 1e-9) {
		t.Fatalf("ratio = %v, want 0.5", exp.ExposureRatio)
	}
	// 300 * 0.85 - 100
	if !approx(exp.BrokerRisk, 155, 1e-9) {
		t.Fatalf("broker risk = %v, want 155", exp.BrokerRisk)
	}
}

func TestGetAllExposuresSkipsFlatSymbols(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 200, 1.085)
	e.TrackTrade(tr)
	other := upTrade("b", 50, 65000)
	other.Symbol = "BTCUSD-OTC"
	e.TrackTrade(other)

	all := e.GetAllExposures()
	if len(all) != 2 {
		t.Fatalf("got %d symbols, want 2", len(all))
	}
	if all["EURUSD-OTC"].TotalUpAmount != 200 {
		t.Fatalf("eurusd up = %v, want 200", all["EURUSD-OTC"].TotalUpAmount)
	}

	e.RemoveTrade("b")
	all = e.GetAllExposures()
	if _, ok := all["BTCUSD-OTC"]; ok {
		t.Fatalf("flat symbol should not appear in snapshot")
	}
}

func TestTrackTradeIdempotent(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 100, 1.085)
	if !e.TrackTrade(tr) {
		t.Fatalf("first TrackTrade must report tracked")
	}
	if e.TrackTrade(tr) {
		t.Fatalf("duplicate TrackTrade must report untracked")
	}
	if exp := e.GetExposure("EURUSD-OTC"); exp.TotalUpAmount != 100 {
		t.Fatalf("duplicate tracking doubled exposure: %v", exp.TotalUpAmount)
	}

	if _, ok := e.RemoveTrade("a"); !ok {
		t.Fatalf("expected trade removed")
	}
	if _, ok := e.RemoveTrade("a"); ok {
		t.Fatalf("second removal must report absent")
	}
}

func TestExitPriceBelowThreshold(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	// Balanced book, ratio 0.
	e.TrackTrade(upTrade("a", 100, 1.085))
	e.TrackTrade(downTrade("b", 100, 1.085))

	res := e.CalculateExitPrice(context.Background(), upTrade("a", 100, 1.085), 1.0860)
	if res.Influenced || res.Reason != "below_threshold" || res.ExitPrice != 1.0860 {
		t.Fatalf("expected clean passthrough, got %+v", res)
	}
}

func TestExitPriceNoConfigAndDisabled(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	res := e.CalculateExitPrice(context.Background(), upTrade("a", 100, 1.085), 1.0860)
	if res.Reason != "no_risk_config" || res.ExitPrice != 1.0860 {
		t.Fatalf("expected no_risk_config passthrough, got %+v", res)
	}

	cfg := testRiskConfig()
	cfg.Enabled = false
	e.SetConfig(cfg)
	res = e.CalculateExitPrice(context.Background(), upTrade("a", 100, 1.085), 1.0860)
	if res.Reason != "risk_disabled" || res.ExitPrice != 1.0860 {
		t.Fatalf("expected risk_disabled passthrough, got %+v", res)
	}
}

func TestInterventionNudgesAgainstLargerSide(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t),
		WithUniformSource(func() float64 { return 0 })) // always fires
	e.SetConfig(testRiskConfig())

	// All money on UP: the nudge goes down.
	tr := upTrade("a", 100, 1.0850)
	e.TrackTrade(tr)
	res := e.CalculateExitPrice(context.Background(), tr, 1.0860)
	if !res.Influenced || res.Reason != "intervention" {
		t.Fatalf("expected intervention, got %+v", res)
	}
	if !approx(res.ExitPrice, 1.0860-3*0.0001, 1e-9) {
		t.Fatalf("exit = %v, want three pips below market", res.ExitPrice)
	}
	if res.OriginalPrice != 1.0860 {
		t.Fatalf("original price must be preserved, got %v", res.OriginalPrice)
	}

	// All money on DOWN: the nudge goes up.
	e2 := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t),
		WithUniformSource(func() float64 { return 0 }))
	e2.SetConfig(testRiskConfig())
	tr2 := downTrade("b", 100, 1.0850)
	e2.TrackTrade(tr2)
	res2 := e2.CalculateExitPrice(context.Background(), tr2, 1.0860)
	if !approx(res2.ExitPrice, 1.0860+3*0.0001, 1e-9) {
		t.Fatalf("exit = %v, want three pips above market", res2.ExitPrice)
	}
}

func TestInterventionSkippedOnLosingDraw(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t),
		WithUniformSource(func() float64 { return 0.999 })) // never fires
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 100, 1.0850)
	e.TrackTrade(tr)
	res := e.CalculateExitPrice(context.Background(), tr, 1.0860)
	if res.Influenced || res.Reason != "intervention_skipped" || res.ExitPrice != 1.0860 {
		t.Fatalf("expected skipped intervention, got %+v", res)
	}
	if res.InterventionProbability <= 0 {
		t.Fatalf("skipped decision must still report the probability, got %v", res.InterventionProbability)
	}
}

func TestForcedOutcomeBeatsExposure(t *testing.T) {
	ctl := control.NewCenter()
	e := NewRiskEngine(ctl, nil, nil, testLogger(t),
		WithUniformSource(func() float64 { return 0 }))
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 100, 1.0850)
	e.TrackTrade(tr)
	if err := ctl.ForceTradeOutcome("a", models.OutcomeWin); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	// Market below entry would lose; the forced win nudges past the entry.
	res := e.CalculateExitPrice(context.Background(), tr, 1.0840)
	if !res.Influenced || res.Reason != "forced_win:trade_override" {
		t.Fatalf("expected forced win, got %+v", res)
	}
	if !approx(res.ExitPrice, 1.0850+3*0.0001, 1e-9) {
		t.Fatalf("exit = %v, want entry plus nudge", res.ExitPrice)
	}
}

func TestForcedOutcomeKeepsMarketWhenAlreadyRight(t *testing.T) {
	ctl := control.NewCenter()
	e := NewRiskEngine(ctl, nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 100, 1.0850)
	e.TrackTrade(tr)
	if err := ctl.ForceTradeOutcome("a", models.OutcomeWin); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	res := e.CalculateExitPrice(context.Background(), tr, 1.0870)
	if res.ExitPrice != 1.0870 {
		t.Fatalf("market already wins, exit must stay %v, got %v", 1.0870, res.ExitPrice)
	}
}

func TestForcedLoseForUpTrade(t *testing.T) {
	ctl := control.NewCenter()
	e := NewRiskEngine(ctl, nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())

	tr := upTrade("a", 100, 1.0850)
	e.TrackTrade(tr)
	if err := ctl.ForceTradeOutcome("a", models.OutcomeLose); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	res := e.CalculateExitPrice(context.Background(), tr, 1.0850)
	if !approx(res.ExitPrice, 1.0850-3*0.0001, 1e-9) {
		t.Fatalf("exit = %v, want entry minus nudge", res.ExitPrice)
	}
	if res.Reason != "forced_lose:trade_override" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestOpenTradesSnapshot(t *testing.T) {
	e := NewRiskEngine(control.NewCenter(), nil, nil, testLogger(t))
	e.SetConfig(testRiskConfig())
	e.TrackTrade(upTrade("a", 100, 1.085))
	e.TrackTrade(downTrade("b", 50, 1.085))

	if got := len(e.OpenTrades()); got != 2 {
		t.Fatalf("open trades = %d, want 2", got)
	}
	if _, ok := e.GetTrade("a"); !ok {
		t.Fatalf("expected trade a present")
	}
	e.RemoveTrade("a")
	if got := len(e.OpenTrades()); got != 1 {
		t.Fatalf("open trades = %d, want 1", got)
	}
}
