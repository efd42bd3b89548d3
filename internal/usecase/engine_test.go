package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/middleware"
	"QuoteForge/internal/service/control"
	"QuoteForge/internal/service/ledger"
	"QuoteForge/pkg/config"

	"github.com/shopspring/decimal"
)

type noopSink struct{}

func (noopSink) BroadcastTick(context.Context, *models.PriceTick) error   { return nil }
func (noopSink) BroadcastEvent(context.Context, *models.UserEvent) error { return nil }
func (noopSink) Close() error                                            { return nil }

func testEngineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Engine.TickInterval = 50 * time.Millisecond
	cfg.Engine.SweepInterval = time.Second
	cfg.Engine.SettlementGrace = time.Second
	cfg.Engine.HistorySize = 10
	cfg.Ledger.RetryMax = 1
	cfg.Ledger.RetryBackoff = time.Millisecond
	cfg.Symbols = []config.SymbolConfig{{
		Symbol:       "BTCUSD-OTC",
		Market:       "crypto",
		InitialPrice: 100,
		PipSize:      0.01,
		Price: config.PriceParams{
			BaseVolatility:       0.01,
			VolatilityMultiplier: 1,
			GarchBeta:            1,
		},
		Risk: config.RiskParams{
			Enabled:             true,
			ExposureThreshold:   0.3,
			MinInterventionRate: 0.1,
			MaxInterventionRate: 0.8,
			SpreadMultiplier:    3,
			PayoutPct:           0.85,
		},
	}}
	return cfg
}

// newTestEngine wires an engine with in-memory backends and deterministic
// randomness. Loops are not started; settlement is driven directly.
func newTestEngine(t *testing.T, led *ledger.MemoryLedger) (*MarketEngine, *control.Center) {
	t.Helper()
	cfg := testEngineConfig()
	log := testLogger(t)
	ctl := control.NewCenter()
	gen := NewPriceGenerator(ctl, WithNormSource(func() float64 { return 0 }))
	sessions := NewSessionScheduler(0, 30*time.Second)
	risk := NewRiskEngine(ctl, nil, nil, log, WithUniformSource(func() float64 { return 1 }))
	pipe := middleware.NewBroadcastPipeline(noopSink{}, nil)

	e := NewMarketEngine(cfg, gen, sessions, risk, ctl, nil, nil, led, nil, nil, pipe, nil, log)
	if err := e.loadSymbols(context.Background()); err != nil {
		t.Fatalf("loadSymbols: %v", err)
	}
	return e, ctl
}

func TestPlaceTradeDebitsStake(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)

	tr, err := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Minute,
	})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if tr.EntryPrice != 100 {
		t.Fatalf("entry price = %v, want initial 100", tr.EntryPrice)
	}
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %v, want 900", got)
	}
	if _, ok := e.Risk().GetTrade(tr.ID); !ok {
		t.Fatalf("trade missing from exposure ledger")
	}
	if e.Scheduler().Pending() != 1 {
		t.Fatalf("expected one armed timer")
	}
	e.Scheduler().Stop()
}

func TestPlaceTradeDuplicateIDDebitsOnce(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)

	in := PlaceTradeInput{
		TradeID: "client-retry-1", UserID: "u1", Symbol: "BTCUSD-OTC",
		Amount: 100, Direction: models.DirectionUp, Expiry: time.Minute,
	}
	first, err := e.PlaceTrade(context.Background(), in)
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	second, err := e.PlaceTrade(context.Background(), in)
	if err != nil {
		t.Fatalf("retried PlaceTrade: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry returned trade %q, want %q", second.ID, first.ID)
	}
	if got := len(e.Risk().OpenTrades()); got != 1 {
		t.Fatalf("open trades = %d, want 1", got)
	}
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %v, want a single 100 debit leaving 900", got)
	}
	e.Scheduler().Stop()
}

func TestPlaceTradeUnknownSymbol(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)

	_, err := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "NOPE", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Minute,
	})
	if !errors.Is(err, ErrSymbolUnknown) {
		t.Fatalf("expected ErrSymbolUnknown, got %v", err)
	}
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance touched on rejected trade: %v", got)
	}
}

func TestPlaceTradeInsufficientBalance(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(50))
	e, _ := newTestEngine(t, led)

	_, err := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Minute,
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(e.Risk().OpenTrades()) != 0 {
		t.Fatalf("rejected trade must not enter the exposure ledger")
	}
	if e.Scheduler().Pending() != 0 {
		t.Fatalf("rejected trade must not arm a timer")
	}
}

func TestSettleForcedWinPaysOut(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, ctl := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	tr, err := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if err := ctl.ForceTradeOutcome(tr.ID, models.OutcomeWin); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	e.settleTrade(context.Background(), tr.ID)

	// 1000 - 100 stake + 185 payout (stake plus 85%).
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(1085)) {
		t.Fatalf("balance = %v, want 1085", got)
	}
	if _, ok := e.Risk().GetTrade(tr.ID); ok {
		t.Fatalf("settled trade still in exposure ledger")
	}

	// Settlement is exactly-once: a duplicate attempt finds nothing.
	e.settleTrade(context.Background(), tr.ID)
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(1085)) {
		t.Fatalf("duplicate settlement mutated balance: %v", got)
	}
}

func TestSettleForcedLoseKeepsStake(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, ctl := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	tr, _ := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	if err := ctl.ForceTradeOutcome(tr.ID, models.OutcomeLose); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	e.settleTrade(context.Background(), tr.ID)
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("balance = %v, want 900", got)
	}
}

func TestSettleDrawRefundsStake(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	// Price never moves (zero noise), intervention never fires (uniform=1),
	// so the exit equals the entry and the stake comes back.
	tr, _ := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	e.settleTrade(context.Background(), tr.ID)
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("draw must refund the stake, balance = %v", got)
	}
}

func TestVoidTradeRefunds(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	tr, _ := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	if err := e.VoidTrade(context.Background(), tr.ID); err != nil {
		t.Fatalf("VoidTrade: %v", err)
	}
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("void must refund the stake, balance = %v", got)
	}
	if err := e.VoidTrade(context.Background(), tr.ID); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("second void: expected ErrTradeNotFound, got %v", err)
	}
	if e.Scheduler().Pending() != 0 {
		t.Fatalf("void must disarm the timer")
	}
}

func TestVoidTradePastExpiry(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	tr, _ := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := e.VoidTrade(context.Background(), tr.ID); !errors.Is(err, ErrTradeExpired) {
		t.Fatalf("expected ErrTradeExpired, got %v", err)
	}
	if got := led.Balance("u1"); !got.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expired void must not refund, balance = %v", got)
	}
}

func TestResolveOutcome(t *testing.T) {
	up := &models.TradeInfo{EntryPrice: 100, Direction: models.DirectionUp}
	down := &models.TradeInfo{EntryPrice: 100, Direction: models.DirectionDown}

	cases := []struct {
		trade *models.TradeInfo
		exit  float64
		want  models.Outcome
	}{
		{up, 100.01, models.OutcomeWin},
		{up, 99.99, models.OutcomeLose},
		{up, 100, models.OutcomeDraw},
		{down, 99.99, models.OutcomeWin},
		{down, 100.01, models.OutcomeLose},
		{down, 100, models.OutcomeDraw},
	}
	for _, tc := range cases {
		if got := resolveOutcome(tc.trade, tc.exit); got != tc.want {
			t.Fatalf("resolveOutcome(%v, %v) = %v, want %v", tc.trade.Direction, tc.exit, got, tc.want)
		}
	}
}

type brokenLedger struct{ *ledger.MemoryLedger }

func (brokenLedger) Credit(context.Context, string, decimal.Decimal, string) error {
	return errors.New("ledger unavailable")
}

func TestSettleSurvivesPayoutFailure(t *testing.T) {
	mem := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	cfg := testEngineConfig()
	log := testLogger(t)
	ctl := control.NewCenter()
	gen := NewPriceGenerator(ctl, WithNormSource(func() float64 { return 0 }))
	risk := NewRiskEngine(ctl, nil, nil, log, WithUniformSource(func() float64 { return 1 }))
	pipe := middleware.NewBroadcastPipeline(noopSink{}, nil)
	e := NewMarketEngine(cfg, gen, NewSessionScheduler(0, 30*time.Second), risk, ctl,
		nil, nil, brokenLedger{mem}, nil, nil, pipe, nil, log)
	if err := e.loadSymbols(context.Background()); err != nil {
		t.Fatalf("loadSymbols: %v", err)
	}
	defer e.Scheduler().Stop()

	tr, err := e.PlaceTrade(context.Background(), PlaceTradeInput{
		UserID: "u1", Symbol: "BTCUSD-OTC", Amount: 100,
		Direction: models.DirectionUp, Expiry: time.Hour,
	})
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if err := ctl.ForceTradeOutcome(tr.ID, models.OutcomeWin); err != nil {
		t.Fatalf("ForceTradeOutcome: %v", err)
	}

	// Credit always fails; the settlement must still resolve the trade.
	e.settleTrade(context.Background(), tr.ID)
	if _, ok := e.Risk().GetTrade(tr.ID); ok {
		t.Fatalf("trade must leave the ledger even when the payout fails")
	}
}

func TestApplyRiskConfig(t *testing.T) {
	led := ledger.NewMemoryLedger(decimal.NewFromInt(1000))
	e, _ := newTestEngine(t, led)
	defer e.Scheduler().Stop()

	cfg, _ := e.Risk().ConfigFor("BTCUSD-OTC")
	cfg.MaxInterventionRate = 0.5
	if err := e.ApplyRiskConfig(context.Background(), &cfg); err != nil {
		t.Fatalf("ApplyRiskConfig: %v", err)
	}
	got, ok := e.Risk().ConfigFor("BTCUSD-OTC")
	if !ok || got.MaxInterventionRate != 0.5 {
		t.Fatalf("config not applied: %+v", got)
	}
}
