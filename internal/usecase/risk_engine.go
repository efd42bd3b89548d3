package usecase

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
	"QuoteForge/internal/service/control"
	"QuoteForge/pkg/logger"

	"github.com/google/uuid"
)

const defaultPipSize = 0.0001

// RateCurve maps an exposure ratio above the threshold to an intervention
// probability within [min,max].
type RateCurve func(ratio, threshold, min, max float64) float64

// LinearRateCurve interpolates linearly from min at the threshold to max at
// full one-sided exposure.
func LinearRateCurve(ratio, threshold, min, max float64) float64 {
	if ratio <= threshold {
		return min
	}
	if threshold >= 1 {
		return max
	}
	p := min + (ratio-threshold)/(1-threshold)*(max-min)
	if p < min {
		return min
	}
	if p > max {
		return max
	}
	return p
}

// RiskEngine tracks open trades per symbol and decides, at settlement time,
// whether the exit price deviates from the market price. Every decision above
// the exposure threshold is audited, fired or not.
type RiskEngine struct {
	mu       sync.Mutex
	configs  map[string]*models.RiskConfig
	trades   map[string]*models.TradeInfo
	bySymbol map[string]map[string]*models.TradeInfo

	control *control.Center
	audit   repository.ActivityLog
	metrics repository.Metrics
	log     *logger.Logger
	curve   RateCurve
	uniform func() float64
	now     func() time.Time
}

// RiskOption configures a RiskEngine.
type RiskOption func(*RiskEngine)

// WithRateCurve replaces the probability curve.
func WithRateCurve(c RateCurve) RiskOption {
	return func(e *RiskEngine) { e.curve = c }
}

// WithUniformSource replaces the Bernoulli draw for tests.
func WithUniformSource(f func() float64) RiskOption {
	return func(e *RiskEngine) { e.uniform = f }
}

// WithRiskClock overrides the time source.
func WithRiskClock(now func() time.Time) RiskOption {
	return func(e *RiskEngine) { e.now = now }
}

// NewRiskEngine creates an engine with no symbol configs loaded.
func NewRiskEngine(ctl *control.Center, audit repository.ActivityLog, metrics repository.Metrics, log *logger.Logger, opts ...RiskOption) *RiskEngine {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &RiskEngine{
		configs:  make(map[string]*models.RiskConfig),
		trades:   make(map[string]*models.TradeInfo),
		bySymbol: make(map[string]map[string]*models.TradeInfo),
		control:  ctl,
		audit:    audit,
		metrics:  metrics,
		log:      log,
		curve:    LinearRateCurve,
		uniform:  rnd.Float64,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetConfig installs or replaces the risk parameters for a symbol.
func (e *RiskEngine) SetConfig(cfg *models.RiskConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := *cfg
	e.configs[cfg.Symbol] = &c
}

// ConfigFor returns a copy of the symbol's risk config.
func (e *RiskEngine) ConfigFor(symbol string) (models.RiskConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, ok := e.configs[symbol]
	if !ok {
		return models.RiskConfig{}, false
	}
	return *cfg, true
}

// TrackTrade adds a trade to the exposure ledger. It reports false when the
// id is already tracked so callers can unwind a retried placement instead of
// double-counting it.
func (e *RiskEngine) TrackTrade(trade *models.TradeInfo) bool {
	e.mu.Lock()
	if _, exists := e.trades[trade.ID]; exists {
		e.mu.Unlock()
		return false
	}
	e.trades[trade.ID] = trade
	m := e.bySymbol[trade.Symbol]
	if m == nil {
		m = make(map[string]*models.TradeInfo)
		e.bySymbol[trade.Symbol] = m
	}
	m[trade.ID] = trade
	exp := e.exposureLocked(trade.Symbol)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordExposure(trade.Symbol, exp.ExposureRatio)
	}
	return true
}

// RemoveTrade drops a trade from the ledger, returning it if it was present.
func (e *RiskEngine) RemoveTrade(tradeID string) (*models.TradeInfo, bool) {
	e.mu.Lock()
	trade, ok := e.trades[tradeID]
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	delete(e.trades, tradeID)
	delete(e.bySymbol[trade.Symbol], tradeID)
	exp := e.exposureLocked(trade.Symbol)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordExposure(trade.Symbol, exp.ExposureRatio)
	}
	return trade, true
}

// GetTrade returns the live trade for an id, if still open.
func (e *RiskEngine) GetTrade(tradeID string) (*models.TradeInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	return t, ok
}

// OpenTrades snapshots every open trade, for the startup pass and the sweeper.
func (e *RiskEngine) OpenTrades() []*models.TradeInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.TradeInfo, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, t)
	}
	return out
}

// GetExposure recomputes the exposure snapshot for a symbol from the live
// trade lists.
func (e *RiskEngine) GetExposure(symbol string) models.SymbolExposure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposureLocked(symbol)
}

// GetAllExposures snapshots exposure for every symbol with open trades.
func (e *RiskEngine) GetAllExposures() map[string]models.SymbolExposure {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]models.SymbolExposure, len(e.bySymbol))
	for symbol, trades := range e.bySymbol {
		if len(trades) == 0 {
			continue
		}
		out[symbol] = e.exposureLocked(symbol)
	}
	return out
}

func (e *RiskEngine) exposureLocked(symbol string) models.SymbolExposure {
	exp := models.SymbolExposure{Symbol: symbol}
	for _, t := range e.bySymbol[symbol] {
		if t.Direction == models.DirectionUp {
			exp.UpTrades = append(exp.UpTrades, t)
			exp.TotalUpAmount += t.Amount
		} else {
			exp.DownTrades = append(exp.DownTrades, t)
			exp.TotalDownAmount += t.Amount
		}
	}
	exp.NetExposure = exp.TotalUpAmount - exp.TotalDownAmount

	total := exp.TotalUpAmount + exp.TotalDownAmount
	if total > 0 {
		net := exp.NetExposure
		if net < 0 {
			net = -net
		}
		exp.ExposureRatio = net / total
	}

	payout := 0.85
	if cfg := e.configs[symbol]; cfg != nil && cfg.PayoutPct > 0 {
		payout = cfg.PayoutPct
	}
	larger, smaller := exp.TotalUpAmount, exp.TotalDownAmount
	if smaller > larger {
		larger, smaller = smaller, larger
	}
	if risk := larger*payout - smaller; risk > 0 {
		exp.BrokerRisk = risk
	}
	return exp
}

// CalculateExitPrice decides the exit price for one settling trade. Forced
// outcomes take precedence over exposure-based intervention; any internal
// failure degrades to the unmodified market price.
func (e *RiskEngine) CalculateExitPrice(ctx context.Context, trade *models.TradeInfo, marketPrice float64) (res models.ExitPriceResult) {
	res = models.ExitPriceResult{
		ExitPrice:     marketPrice,
		OriginalPrice: marketPrice,
		Reason:        "no_intervention",
	}
	defer func() {
		if r := recover(); r != nil {
			res = models.ExitPriceResult{
				ExitPrice:     marketPrice,
				OriginalPrice: marketPrice,
				Reason:        "evaluation_error",
			}
			if e.metrics != nil {
				e.metrics.RecordError("risk_evaluation")
			}
			e.log.Error("risk evaluation panicked, passing market price through",
				logger.String("symbol", trade.Symbol),
				logger.String("trade_id", trade.ID),
				logger.Any("panic", r))
		}
	}()

	e.mu.Lock()
	cfg := e.configs[trade.Symbol]
	exp := e.exposureLocked(trade.Symbol)
	e.mu.Unlock()

	if outcome, source, ok := e.control.ConsumeForced(trade); ok {
		delta := defaultPipSize
		if cfg != nil && cfg.PipSize > 0 {
			delta = cfg.SpreadMultiplier * cfg.PipSize
			if delta <= 0 {
				delta = cfg.PipSize
			}
		}
		res.ExitPrice = forcedExit(trade, marketPrice, outcome, delta)
		res.Influenced = true
		res.Reason = "forced_" + strings.ToLower(string(outcome)) + ":" + source
		e.recordDecision(ctx, trade, exp, res, models.AuditForcedOutcome)
		return res
	}

	switch {
	case cfg == nil:
		res.Reason = "no_risk_config"
		return res
	case !cfg.Enabled:
		res.Reason = "risk_disabled"
		return res
	case exp.ExposureRatio <= cfg.ExposureThreshold:
		res.Reason = "below_threshold"
		return res
	}

	p := e.curve(exp.ExposureRatio, cfg.ExposureThreshold, cfg.MinInterventionRate, cfg.MaxInterventionRate)
	res.InterventionProbability = p

	if e.uniform() < p {
		delta := cfg.SpreadMultiplier * cfg.PipSize
		if exp.TotalUpAmount > exp.TotalDownAmount {
			res.ExitPrice = marketPrice - delta
		} else {
			res.ExitPrice = marketPrice + delta
		}
		res.Influenced = true
		res.Reason = "intervention"
		e.recordDecision(ctx, trade, exp, res, models.AuditIntervention)
	} else {
		res.Reason = "intervention_skipped"
		e.recordDecision(ctx, trade, exp, res, models.AuditNoIntervention)
	}
	return res
}

// forcedExit returns the cheapest exit consistent with the forced outcome: the
// market price when it already resolves that way, a minimal nudge past the
// entry otherwise.
func forcedExit(trade *models.TradeInfo, marketPrice float64, outcome models.Outcome, delta float64) float64 {
	wantAbove := (trade.Direction == models.DirectionUp) == (outcome == models.OutcomeWin)
	if wantAbove {
		if marketPrice > trade.EntryPrice {
			return marketPrice
		}
		return trade.EntryPrice + delta
	}
	if marketPrice < trade.EntryPrice {
		return marketPrice
	}
	return trade.EntryPrice - delta
}

func (e *RiskEngine) recordDecision(ctx context.Context, trade *models.TradeInfo, exp models.SymbolExposure, res models.ExitPriceResult, eventType string) {
	if e.metrics != nil {
		result := "skipped"
		if res.Influenced {
			result = "fired"
		}
		e.metrics.RecordIntervention(trade.Symbol, result)
	}
	if e.audit == nil {
		return
	}
	audit := &models.InterventionAudit{
		ID:                      uuid.NewString(),
		Symbol:                  trade.Symbol,
		EventType:               eventType,
		TradeID:                 trade.ID,
		UserID:                  trade.UserID,
		ExposureRatio:           exp.ExposureRatio,
		InterventionProbability: res.InterventionProbability,
		MarketPrice:             res.OriginalPrice,
		AdjustedPrice:           res.ExitPrice,
		Success:                 res.Influenced,
		At:                      e.now(),
	}
	if err := e.audit.RecordIntervention(ctx, audit); err != nil {
		e.log.Warn("intervention audit dropped",
			logger.String("symbol", trade.Symbol),
			logger.String("trade_id", trade.ID),
			logger.Error(err))
	}
}
