package usecase

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/service/control"
)

// PriceGenerator produces the synthetic OTC price stream. Each symbol owns an
// independent random source so streams stay uncorrelated; state is mutated
// only here, callers get copies.
type PriceGenerator struct {
	mu      sync.Mutex
	states  map[string]*genState
	control *control.Center
	norm    func() float64 // test hook, nil in production
	now     func() time.Time
}

type genState struct {
	cfg         *models.PriceConfig
	st          models.PriceState
	rnd         *rand.Rand
	lastEmitted float64
}

// GeneratorOption configures a PriceGenerator.
type GeneratorOption func(*PriceGenerator)

// WithNormSource replaces the per-symbol gaussian draw, shared by all symbols.
func WithNormSource(f func() float64) GeneratorOption {
	return func(g *PriceGenerator) { g.norm = f }
}

// WithGeneratorClock overrides the time source.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *PriceGenerator) { g.now = now }
}

// NewPriceGenerator creates a generator consulting the given control center
// for manual overrides.
func NewPriceGenerator(ctl *control.Center, opts ...GeneratorOption) *PriceGenerator {
	g := &PriceGenerator{
		states:  make(map[string]*genState),
		control: ctl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize seeds (or re-seeds) a symbol. The initial price doubles as the
// anchor until a real quote arrives.
func (g *PriceGenerator) Initialize(cfg *models.PriceConfig, initialPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := *cfg
	g.states[cfg.Symbol] = &genState{
		cfg: &c,
		st: models.PriceState{
			Symbol:       cfg.Symbol,
			CurrentPrice: initialPrice,
			AnchorPrice:  initialPrice,
			Volatility:   cfg.BaseVolatility,
			UpdatedAt:    g.now(),
		},
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano() + int64(len(g.states)))),
		lastEmitted: initialPrice,
	}
}

// Reload swaps the config for a symbol, preserving its live state.
func (g *PriceGenerator) Reload(cfg *models.PriceConfig) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[cfg.Symbol]
	if !ok {
		return false
	}
	c := *cfg
	s.cfg = &c
	return true
}

// Remove drops a symbol entirely.
func (g *PriceGenerator) Remove(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, symbol)
}

// Symbols lists the initialized symbols.
func (g *PriceGenerator) Symbols() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.states))
	for sym := range g.states {
		out = append(out, sym)
	}
	return out
}

// Config returns a copy of the symbol's config, or false if uninitialized.
func (g *PriceGenerator) Config(symbol string) (models.PriceConfig, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok {
		return models.PriceConfig{}, false
	}
	return *s.cfg, true
}

// State returns a copy of the symbol's live state including history.
func (g *PriceGenerator) State(symbol string) (models.PriceState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok {
		return models.PriceState{}, false
	}
	st := s.st
	st.History = append([]models.HistoryPoint(nil), s.st.History...)
	return st, true
}

// CurrentPrice returns the last computed mid price, or false if uninitialized.
func (g *PriceGenerator) CurrentPrice(symbol string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok {
		return 0, false
	}
	return s.st.CurrentPrice, true
}

// UpdateRealPrice records a real-market observation. The anchor follows the
// real price so synthetic drift reverts toward the last known real level.
func (g *PriceGenerator) UpdateRealPrice(symbol string, price float64, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok || price <= 0 {
		return false
	}
	s.st.LastRealPrice = price
	s.st.RealPriceAt = at
	s.st.AnchorPrice = price
	return true
}

// LastReal returns the latest real observation for a symbol.
func (g *PriceGenerator) LastReal(symbol string) (float64, time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok || s.st.LastRealPrice <= 0 {
		return 0, time.Time{}, false
	}
	return s.st.LastRealPrice, s.st.RealPriceAt, true
}

// GenerateNextPrice advances the synthetic process one step and emits a tick.
// Returns nil for symbols that were never initialized.
func (g *PriceGenerator) GenerateNextPrice(symbol string) *models.PriceTick {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok {
		return nil
	}
	now := g.now()
	price := g.stepLocked(s, now)
	return g.emitLocked(s, price, models.ModeOTC, now)
}

// StepOTC advances the synthetic process one step without emitting a tick,
// so callers blending it with another level publish a single quote per step.
func (g *PriceGenerator) StepOTC(symbol string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok {
		return 0, false
	}
	return g.stepLocked(s, g.now()), true
}

// stepLocked runs one GARCH step, updating the process state and returning
// the new unrounded mid.
func (g *PriceGenerator) stepLocked(s *genState, now time.Time) float64 {
	cfg := s.cfg

	// GARCH(1,1): variance feeds on the squared last return and its own lag.
	variance := cfg.GarchOmega +
		cfg.GarchAlpha*s.st.LastReturn*s.st.LastReturn +
		cfg.GarchBeta*s.st.Volatility*s.st.Volatility
	vol := math.Sqrt(variance)
	if vol <= 0 || math.IsNaN(vol) {
		vol = cfg.BaseVolatility
	}

	effVol := vol * cfg.VolatilityMultiplier
	if m, ok := g.control.EffectiveVolMultiplier(s.cfg.Symbol); ok {
		effVol *= m
	}

	shock := g.drawNorm(s) * effVol
	if bias, strength, ok := g.control.EffectiveBias(s.cfg.Symbol); ok {
		shock += bias / 100 * strength * effVol
	}

	ret := shock + cfg.MomentumFactor*s.st.Momentum
	if anchor := s.st.AnchorPrice; anchor > 0 && cfg.MeanReversion > 0 {
		ret -= cfg.MeanReversion * (s.st.CurrentPrice - anchor) / anchor
	}

	price := s.st.CurrentPrice * (1 + ret)
	if anchor := s.st.AnchorPrice; anchor > 0 && cfg.MaxDeviationPct > 0 {
		maxDev := anchor * cfg.MaxDeviationPct / 100
		if price > anchor+maxDev {
			price = anchor + maxDev
		} else if price < anchor-maxDev {
			price = anchor - maxDev
		}
	}
	if price <= 0 {
		price = s.st.CurrentPrice
	}

	if p, ok := g.control.EffectivePriceOverride(s.cfg.Symbol); ok {
		price = p
	}

	s.st.Volatility = vol
	s.st.Momentum = ret
	s.st.LastReturn = ret
	s.st.CurrentPrice = price
	s.st.UpdatedAt = now

	return price
}

// GetRealBasedPrice mirrors a real quote with light synthetic noise on top.
// Returns nil for symbols that were never initialized.
func (g *PriceGenerator) GetRealBasedPrice(symbol string, realPrice float64) *models.PriceTick {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok || realPrice <= 0 {
		return nil
	}
	now := g.now()

	noise := g.drawNorm(s) * s.st.Volatility * 0.1
	price := realPrice * (1 + noise)
	if price <= 0 {
		price = realPrice
	}

	ret := 0.0
	if s.st.CurrentPrice > 0 {
		ret = price/s.st.CurrentPrice - 1
	}
	s.st.LastReturn = ret
	s.st.Momentum = ret
	s.st.CurrentPrice = price
	s.st.LastRealPrice = realPrice
	s.st.RealPriceAt = now
	s.st.AnchorPrice = realPrice
	s.st.UpdatedAt = now

	return g.emitLocked(s, price, models.ModeReal, now)
}

// EmitAt forces the state to a specific mid price and emits a tick for it.
// Used by the anchoring blend so the visible stream stays continuous.
func (g *PriceGenerator) EmitAt(symbol string, price float64, mode models.PriceMode) *models.PriceTick {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.states[symbol]
	if !ok || price <= 0 {
		return nil
	}
	now := g.now()
	s.st.CurrentPrice = price
	s.st.UpdatedAt = now
	return g.emitLocked(s, price, mode, now)
}

func (g *PriceGenerator) drawNorm(s *genState) float64 {
	if g.norm != nil {
		return g.norm()
	}
	return s.rnd.NormFloat64()
}

// emitLocked rounds only at the emission boundary; internal state keeps full
// precision so rounding never compounds.
func (g *PriceGenerator) emitLocked(s *genState, price float64, mode models.PriceMode, now time.Time) *models.PriceTick {
	cfg := s.cfg

	mid := roundToPip(price+cfg.PriceOffset, cfg.PipSize)
	halfSpread := cfg.SpreadPips * cfg.PipSize / 2

	change := 0.0
	changePct := 0.0
	if s.lastEmitted > 0 {
		change = mid - s.lastEmitted
		changePct = change / s.lastEmitted * 100
	}
	s.lastEmitted = mid

	s.st.History = append(s.st.History, models.HistoryPoint{Price: mid, At: now})
	if max := cfg.HistorySize; max > 0 && len(s.st.History) > max {
		s.st.History = s.st.History[len(s.st.History)-max:]
	}

	return &models.PriceTick{
		Symbol:     s.st.Symbol,
		Price:      mid,
		Bid:        roundToPip(mid-halfSpread, cfg.PipSize),
		Ask:        roundToPip(mid+halfSpread, cfg.PipSize),
		Mode:       mode,
		Volatility: s.st.Volatility,
		Change:     change,
		ChangePct:  changePct,
		Timestamp:  now,
	}
}

func roundToPip(v, pip float64) float64 {
	if pip <= 0 {
		return v
	}
	return math.Round(v/pip) * pip
}
