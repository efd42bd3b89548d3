package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
	"QuoteForge/internal/middleware"
	"QuoteForge/internal/service/control"
	"QuoteForge/pkg/config"
	"QuoteForge/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrSymbolUnknown = errors.New("symbol unknown")
	ErrTradeNotFound = errors.New("trade not found")
	ErrTradeExpired  = errors.New("trade past expiry")
)

// PlaceTradeInput carries a trade placement request into the engine.
type PlaceTradeInput struct {
	TradeID   string
	UserID    string
	Symbol    string
	Amount    float64
	Direction models.Direction
	Expiry    time.Duration
}

// MarketEngine ties the generator, session scheduler, risk engine and
// settlement scheduler together behind one per-symbol mutex arena. All state
// transitions for a symbol happen under its lock; external I/O (payouts,
// broadcasts, persistence) happens outside it.
type MarketEngine struct {
	cfg      *config.Config
	gen      *PriceGenerator
	sessions *SessionScheduler
	risk     *RiskEngine
	control  *control.Center
	sched    *SettlementScheduler
	store    repository.ConfigStore // optional
	ticks    repository.TickStore   // optional
	ledger   repository.BalanceLedger
	audit    repository.ActivityLog
	retry    repository.RetryQueue // optional
	pipe     *middleware.BroadcastPipeline
	metrics  repository.Metrics
	log      *logger.Logger

	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	tickMu  sync.Mutex
	last    map[string]*models.PriceTick
	pending []*models.PriceTick

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewMarketEngine wires the engine. store, ticks and retry may be nil when
// the corresponding backend is disabled.
func NewMarketEngine(
	cfg *config.Config,
	gen *PriceGenerator,
	sessions *SessionScheduler,
	risk *RiskEngine,
	ctl *control.Center,
	store repository.ConfigStore,
	ticks repository.TickStore,
	ledger repository.BalanceLedger,
	audit repository.ActivityLog,
	retry repository.RetryQueue,
	pipe *middleware.BroadcastPipeline,
	metrics repository.Metrics,
	log *logger.Logger,
) *MarketEngine {
	e := &MarketEngine{
		cfg:      cfg,
		gen:      gen,
		sessions: sessions,
		risk:     risk,
		control:  ctl,
		store:    store,
		ticks:    ticks,
		ledger:   ledger,
		audit:    audit,
		retry:    retry,
		pipe:     pipe,
		metrics:  metrics,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		last:     make(map[string]*models.PriceTick),
		now:      time.Now,
	}
	e.sched = NewSettlementScheduler(e.onExpiry)
	return e
}

func (e *MarketEngine) symbolLock(symbol string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	m, ok := e.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		e.locks[symbol] = m
	}
	return m
}

// Start seeds symbols from configuration (overridden by the config store when
// available) and launches the tick loop, the flush loop and the sweeper.
func (e *MarketEngine) Start(ctx context.Context) error {
	if err := e.loadSymbols(ctx); err != nil {
		return err
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.pipe.Start(ctx)

	e.wg.Add(3)
	go e.tickLoop(ctx)
	go e.flushLoop(ctx)
	go e.sweepLoop(ctx)

	e.log.Info("market engine started",
		logger.Int("symbols", len(e.gen.Symbols())),
		logger.Duration("tick_interval", e.cfg.Engine.TickInterval))
	return nil
}

// Stop halts the loops and disarms every settlement timer.
func (e *MarketEngine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.sched.Stop()
	e.pipe.Stop()
	e.wg.Wait()
}

func (e *MarketEngine) loadSymbols(ctx context.Context) error {
	for _, sc := range e.cfg.Symbols {
		pc, rc := symbolDefaults(sc, e.cfg.Engine.HistorySize)

		if e.store != nil {
			if stored, err := e.store.LoadPriceConfig(ctx, sc.Symbol); err == nil && stored != nil {
				pc = stored
			} else if err := e.store.SavePriceConfig(ctx, pc); err != nil {
				e.log.Warn("seeding price config failed", logger.String("symbol", sc.Symbol), logger.Error(err))
			}
			if stored, err := e.store.LoadRiskConfig(ctx, sc.Symbol); err == nil && stored != nil {
				rc = stored
			} else if err := e.store.SaveRiskConfig(ctx, rc); err != nil {
				e.log.Warn("seeding risk config failed", logger.String("symbol", sc.Symbol), logger.Error(err))
			}
		}

		e.gen.Initialize(pc, sc.InitialPrice)
		e.risk.SetConfig(rc)
	}
	if len(e.gen.Symbols()) == 0 {
		return errors.New("no symbols configured")
	}
	return nil
}

func symbolDefaults(sc config.SymbolConfig, historySize int) (*models.PriceConfig, *models.RiskConfig) {
	pc := &models.PriceConfig{
		Symbol:               sc.Symbol,
		Market:               models.MarketClass(sc.Market),
		PipSize:              sc.PipSize,
		SpreadPips:           sc.Price.SpreadPips,
		PriceOffset:          sc.Price.PriceOffset,
		BaseVolatility:       sc.Price.BaseVolatility,
		VolatilityMultiplier: sc.Price.VolatilityMultiplier,
		MomentumFactor:       sc.Price.MomentumFactor,
		GarchAlpha:           sc.Price.GarchAlpha,
		GarchBeta:            sc.Price.GarchBeta,
		GarchOmega:           sc.Price.GarchOmega,
		MeanReversion:        sc.Price.MeanReversion,
		MaxDeviationPct:      sc.Price.MaxDeviationPct,
		HistorySize:          historySize,
	}
	rc := &models.RiskConfig{
		Symbol:              sc.Symbol,
		Enabled:             sc.Risk.Enabled,
		ExposureThreshold:   sc.Risk.ExposureThreshold,
		MinInterventionRate: sc.Risk.MinInterventionRate,
		MaxInterventionRate: sc.Risk.MaxInterventionRate,
		SpreadMultiplier:    sc.Risk.SpreadMultiplier,
		PipSize:             sc.PipSize,
		PayoutPct:           sc.Risk.PayoutPct,
	}
	return pc, rc
}

func (e *MarketEngine) tickLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range e.gen.Symbols() {
				e.tickSymbol(symbol)
			}
		}
	}
}

// tickSymbol advances one symbol by one step under its lock.
func (e *MarketEngine) tickSymbol(symbol string) {
	lock := e.symbolLock(symbol)
	lock.Lock()

	cfg, ok := e.gen.Config(symbol)
	if !ok {
		lock.Unlock()
		return
	}
	mode := e.sessions.GetPriceMode(symbol, cfg.Market)

	var tick *models.PriceTick
	switch mode {
	case models.ModeReal:
		if real, _, ok := e.gen.LastReal(symbol); ok {
			tick = e.gen.GetRealBasedPrice(symbol, real)
		} else {
			tick = e.gen.GenerateNextPrice(symbol)
		}
	case models.ModeAnchoring:
		otc, ok := e.gen.StepOTC(symbol)
		if !ok {
			break
		}
		if real, _, ok := e.gen.LastReal(symbol); ok {
			otc = e.sessions.GetAnchoredPrice(symbol, otc, real)
		}
		tick = e.gen.EmitAt(symbol, otc, models.ModeAnchoring)
	default:
		tick = e.gen.GenerateNextPrice(symbol)
	}
	lock.Unlock()

	if tick == nil {
		return
	}
	tick.Mode = mode

	e.tickMu.Lock()
	e.last[symbol] = tick
	if e.ticks != nil {
		e.pending = append(e.pending, tick)
	}
	e.tickMu.Unlock()

	e.pipe.PublishTick(tick)
	if e.metrics != nil {
		e.metrics.RecordTick(symbol, string(mode))
		e.metrics.RecordLastPrice(symbol, tick.Price)
	}
}

// flushLoop drains the pending tick batch into the history store.
func (e *MarketEngine) flushLoop(ctx context.Context) {
	defer e.wg.Done()
	if e.ticks == nil {
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.flushTicks(context.Background())
			return
		case <-ticker.C:
			e.flushTicks(ctx)
		}
	}
}

func (e *MarketEngine) flushTicks(ctx context.Context) {
	e.tickMu.Lock()
	batch := e.pending
	e.pending = nil
	e.tickMu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := e.ticks.StoreBatch(ctx, batch); err != nil {
		e.log.Warn("tick history flush failed", logger.Int("ticks", len(batch)), logger.Error(err))
		if e.metrics != nil {
			e.metrics.RecordError("tick_store")
		}
	}
}

// sweepLoop settles trades whose timer never fired once they are past the
// grace period. It is the safety net behind the per-trade timers.
func (e *MarketEngine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Engine.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.now()
			for _, t := range e.risk.OpenTrades() {
				if now.Sub(t.ExpiresAt) <= e.cfg.Engine.SettlementGrace {
					continue
				}
				e.log.Warn("trade past settlement grace, sweeping",
					logger.String("trade_id", t.ID),
					logger.String("symbol", t.Symbol),
					logger.Duration("overdue", now.Sub(t.ExpiresAt)))
				if e.metrics != nil {
					e.metrics.RecordError("settlement_overdue")
				}
				e.sched.Cancel(t.ID)
				e.settleTrade(context.Background(), t.ID)
			}
		}
	}
}

// PlaceTrade debits the stake, tracks exposure and arms the settlement timer.
// The entry price is the symbol's last emitted quote. Retrying a placement
// with the same caller-supplied id returns the open trade without a second
// debit.
func (e *MarketEngine) PlaceTrade(ctx context.Context, in PlaceTradeInput) (*models.TradeInfo, error) {
	if in.TradeID != "" {
		if existing, ok := e.risk.GetTrade(in.TradeID); ok {
			return existing, nil
		}
	}

	tick := e.LastTick(in.Symbol)
	if tick == nil {
		if _, ok := e.gen.CurrentPrice(in.Symbol); !ok {
			return nil, ErrSymbolUnknown
		}
	}
	entry, _ := e.gen.CurrentPrice(in.Symbol)
	if tick != nil {
		entry = tick.Price
	}

	id := in.TradeID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now()
	trade := &models.TradeInfo{
		ID:         id,
		UserID:     in.UserID,
		Symbol:     in.Symbol,
		Amount:     in.Amount,
		EntryPrice: entry,
		Direction:  in.Direction,
		PlacedAt:   now,
		ExpiresAt:  now.Add(in.Expiry),
	}

	stake := decimal.NewFromFloat(in.Amount)
	if err := e.ledger.Debit(ctx, in.UserID, stake, "stake:"+id); err != nil {
		return nil, fmt.Errorf("debit stake: %w", err)
	}

	lock := e.symbolLock(in.Symbol)
	lock.Lock()
	tracked := e.risk.TrackTrade(trade)
	lock.Unlock()

	if !tracked {
		// Lost a race against a concurrent placement of the same id.
		// Reverse the second debit and hand back the trade that won.
		if err := e.ledger.Credit(ctx, in.UserID, stake, "stake-reversal:"+id); err != nil {
			e.deferPayout(ctx, &models.Settlement{
				TradeID:    id,
				UserID:     in.UserID,
				Symbol:     in.Symbol,
				Direction:  in.Direction,
				Outcome:    models.OutcomeDraw,
				EntryPrice: entry,
				ExitPrice:  entry,
				Stake:      in.Amount,
				Payout:     stake,
				SettledAt:  e.now(),
			}, err)
		}
		existing, _ := e.risk.GetTrade(id)
		return existing, nil
	}

	e.sched.Schedule(id, trade.ExpiresAt)

	e.pipe.PublishEvent(&models.UserEvent{
		ID:      uuid.NewString(),
		UserID:  in.UserID,
		Type:    models.EventTradePlaced,
		Payload: trade,
		At:      now,
	})
	return trade, nil
}

// VoidTrade cancels an open trade before expiry and refunds the stake.
func (e *MarketEngine) VoidTrade(ctx context.Context, tradeID string) error {
	trade, ok := e.risk.GetTrade(tradeID)
	if !ok {
		return ErrTradeNotFound
	}
	if e.now().After(trade.ExpiresAt) {
		return ErrTradeExpired
	}

	e.sched.Cancel(tradeID)

	lock := e.symbolLock(trade.Symbol)
	lock.Lock()
	trade, ok = e.risk.RemoveTrade(tradeID)
	lock.Unlock()
	if !ok {
		// Lost the race against settlement; the trade resolved normally.
		return ErrTradeNotFound
	}

	refund := decimal.NewFromFloat(trade.Amount)
	if err := e.ledger.Credit(ctx, trade.UserID, refund, "void:"+tradeID); err != nil {
		e.deferPayout(ctx, &models.Settlement{
			TradeID:    tradeID,
			UserID:     trade.UserID,
			Symbol:     trade.Symbol,
			Direction:  trade.Direction,
			Outcome:    models.OutcomeDraw,
			EntryPrice: trade.EntryPrice,
			ExitPrice:  trade.EntryPrice,
			Stake:      trade.Amount,
			Payout:     refund,
			SettledAt:  e.now(),
		}, err)
	}

	e.pipe.PublishEvent(&models.UserEvent{
		ID:      uuid.NewString(),
		UserID:  trade.UserID,
		Type:    models.EventTradeVoided,
		Payload: trade,
		At:      e.now(),
	})
	return nil
}

// UpdateRealPrice feeds a real-market observation into the engine. Quotes for
// unknown symbols are dropped.
func (e *MarketEngine) UpdateRealPrice(symbol string, price float64, at time.Time) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	ok := e.gen.UpdateRealPrice(symbol, price, at)
	lock.Unlock()
	if !ok {
		return
	}
	e.sessions.NoteRealPrice(symbol, at)
}

// onExpiry is the settlement timer callback.
func (e *MarketEngine) onExpiry(tradeID string) {
	e.settleTrade(context.Background(), tradeID)
}

// settleTrade resolves one trade exactly once. The trade leaves the exposure
// ledger inside the symbol lock, so a duplicate attempt finds nothing and
// no-ops. The payout happens outside the lock and carries its own retries.
func (e *MarketEngine) settleTrade(ctx context.Context, tradeID string) {
	trade, ok := e.risk.GetTrade(tradeID)
	if !ok {
		return
	}

	lock := e.symbolLock(trade.Symbol)
	lock.Lock()
	trade, ok = e.risk.GetTrade(tradeID)
	if !ok {
		lock.Unlock()
		return
	}

	market, _ := e.gen.CurrentPrice(trade.Symbol)
	res := e.risk.CalculateExitPrice(ctx, trade, market)
	outcome := resolveOutcome(trade, res.ExitPrice)
	e.risk.RemoveTrade(tradeID)
	lock.Unlock()

	e.control.RecordOutcome(trade.UserID, trade.Symbol, outcome)

	payoutPct := 0.85
	if rc, ok := e.risk.ConfigFor(trade.Symbol); ok && rc.PayoutPct > 0 {
		payoutPct = rc.PayoutPct
	}
	stake := decimal.NewFromFloat(trade.Amount)
	var payout decimal.Decimal
	switch outcome {
	case models.OutcomeWin:
		payout = stake.Add(stake.Mul(decimal.NewFromFloat(payoutPct)))
	case models.OutcomeDraw:
		payout = stake
	default:
		payout = decimal.Zero
	}

	st := &models.Settlement{
		TradeID:    tradeID,
		UserID:     trade.UserID,
		Symbol:     trade.Symbol,
		Direction:  trade.Direction,
		Outcome:    outcome,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  res.ExitPrice,
		Stake:      trade.Amount,
		Payout:     payout,
		Influenced: res.Influenced,
		SettledAt:  e.now(),
	}

	if payout.IsPositive() {
		if err := e.payoutWithRetry(ctx, st); err != nil {
			e.deferPayout(ctx, st, err)
		}
	}

	e.pipe.PublishEvent(&models.UserEvent{
		ID:      uuid.NewString(),
		UserID:  trade.UserID,
		Type:    models.EventTradeSettled,
		Payload: st,
		At:      st.SettledAt,
	})
	if e.metrics != nil {
		e.metrics.RecordSettlement(trade.Symbol, string(outcome))
	}
	e.log.Info("trade settled",
		logger.String("trade_id", tradeID),
		logger.String("symbol", trade.Symbol),
		logger.String("outcome", string(outcome)),
		logger.Float64("exit_price", res.ExitPrice),
		logger.String("reason", res.Reason))
}

// resolveOutcome applies the binary-option rule: UP wins strictly above entry,
// DOWN strictly below, equality is a draw.
func resolveOutcome(trade *models.TradeInfo, exitPrice float64) models.Outcome {
	switch {
	case exitPrice == trade.EntryPrice:
		return models.OutcomeDraw
	case (exitPrice > trade.EntryPrice) == (trade.Direction == models.DirectionUp):
		return models.OutcomeWin
	default:
		return models.OutcomeLose
	}
}

func (e *MarketEngine) payoutWithRetry(ctx context.Context, st *models.Settlement) error {
	backoff := e.cfg.Ledger.RetryBackoff
	var err error
	for attempt := 0; attempt <= e.cfg.Ledger.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = e.ledger.Credit(ctx, st.UserID, st.Payout, "payout:"+st.TradeID); err == nil {
			return nil
		}
	}
	return err
}

// deferPayout hands a failed credit to the retry queue; with no queue wired
// the settlement is flagged for manual reconciliation.
func (e *MarketEngine) deferPayout(ctx context.Context, st *models.Settlement, cause error) {
	if e.retry != nil {
		if err := e.retry.Enqueue(ctx, PayoutJobType, st); err == nil {
			e.log.Warn("payout deferred to retry queue",
				logger.String("trade_id", st.TradeID),
				logger.Error(cause))
			return
		}
	}
	e.flagReconciliation(ctx, st, cause)
}

func (e *MarketEngine) flagReconciliation(ctx context.Context, st *models.Settlement, cause error) {
	e.log.Error("payout failed, manual reconciliation required",
		logger.String("trade_id", st.TradeID),
		logger.String("user_id", st.UserID),
		logger.String("payout", st.Payout.String()),
		logger.Error(cause))
	if e.metrics != nil {
		e.metrics.RecordError("reconciliation_required")
	}
	if e.audit != nil {
		_ = e.audit.RecordIntervention(ctx, &models.InterventionAudit{
			ID:        uuid.NewString(),
			Symbol:    st.Symbol,
			EventType: models.AuditReconciliation,
			TradeID:   st.TradeID,
			UserID:    st.UserID,
			At:        e.now(),
		})
	}
}

// ReplayPayout credits a settlement payout once. Used by the retry queue
// worker; a returned error re-queues the job.
func (e *MarketEngine) ReplayPayout(ctx context.Context, st *models.Settlement) error {
	return e.ledger.Credit(ctx, st.UserID, st.Payout, "payout:"+st.TradeID)
}

// Reload re-reads a symbol's configuration from the store and applies it
// without touching live price state.
func (e *MarketEngine) Reload(ctx context.Context, symbol string) error {
	if e.store == nil {
		return errors.New("config store disabled")
	}

	pc, err := e.store.LoadPriceConfig(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load price config: %w", err)
	}
	rc, err := e.store.LoadRiskConfig(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load risk config: %w", err)
	}

	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	if pc != nil && !e.gen.Reload(pc) {
		return ErrSymbolUnknown
	}
	if rc != nil {
		e.risk.SetConfig(rc)
	}
	return nil
}

// ApplyRiskConfig installs a risk config and persists it when a store is
// wired. Persistence failure does not undo the live change.
func (e *MarketEngine) ApplyRiskConfig(ctx context.Context, cfg *models.RiskConfig) error {
	lock := e.symbolLock(cfg.Symbol)
	lock.Lock()
	e.risk.SetConfig(cfg)
	lock.Unlock()

	if e.store != nil {
		if err := e.store.SaveRiskConfig(ctx, cfg); err != nil {
			e.log.Warn("risk config persist failed", logger.String("symbol", cfg.Symbol), logger.Error(err))
		}
	}
	return nil
}

// LastTick returns the most recently emitted tick for a symbol.
func (e *MarketEngine) LastTick(symbol string) *models.PriceTick {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.last[symbol]
}

// Generator exposes the price generator for read paths.
func (e *MarketEngine) Generator() *PriceGenerator { return e.gen }

// Risk exposes the risk engine for read paths.
func (e *MarketEngine) Risk() *RiskEngine { return e.risk }

// Sessions exposes the session scheduler for read paths.
func (e *MarketEngine) Sessions() *SessionScheduler { return e.sessions }

// Scheduler exposes the settlement scheduler, mainly for tests.
func (e *MarketEngine) Scheduler() *SettlementScheduler { return e.sched }

// History queries the optional tick store.
func (e *MarketEngine) History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceTick, error) {
	if e.ticks == nil {
		return nil, errors.New("tick history disabled")
	}
	return e.ticks.Query(ctx, symbol, from, to, limit)
}

// PayoutJobType is the retry-queue message type for deferred payouts.
const PayoutJobType = "settlement.payout"
