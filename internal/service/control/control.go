package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
)

// ErrInvalidOverride marks admin input rejected at the control boundary.
var ErrInvalidOverride = errors.New("invalid override")

// Center owns all admin-supplied overrides: per-symbol manual controls and
// per-user targeting. Reads apply lazy expiry via models.Override.Effective;
// nothing ever purges expired overrides.
type Center struct {
	mu       sync.Mutex
	controls map[string]*models.ManualControl
	users    map[string]*models.UserTargeting // keyed userID|symbol, symbol may be empty
	trades   map[string]models.Outcome        // forced per-trade outcomes
	now      func() time.Time
}

// Option configures a Center.
type Option func(*Center)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// NewCenter creates an empty control center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		controls: make(map[string]*models.ManualControl),
		users:    make(map[string]*models.UserTargeting),
		trades:   make(map[string]models.Outcome),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func userKey(userID, symbol string) string { return userID + "|" + symbol }

func deadline(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

func (c *Center) controlLocked(symbol string) *models.ManualControl {
	mc, ok := c.controls[symbol]
	if !ok {
		mc = &models.ManualControl{Symbol: symbol}
		c.controls[symbol] = mc
	}
	return mc
}

// SetBias sets the per-symbol direction bias. Bias is validated to
// [-100,100] and strength to [0,1]; invalid values are never applied.
func (c *Center) SetBias(symbol string, bias, strength float64, ttl time.Duration) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOverride)
	}
	if bias < -100 || bias > 100 {
		return fmt.Errorf("%w: bias %.2f outside [-100,100]", ErrInvalidOverride, bias)
	}
	if strength < 0 || strength > 1 {
		return fmt.Errorf("%w: strength %.2f outside [0,1]", ErrInvalidOverride, strength)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlLocked(symbol).Bias = &models.Override{
		Value:     bias,
		Strength:  strength,
		ExpiresAt: deadline(c.now(), ttl),
	}
	return nil
}

// SetVolMultiplier sets the per-symbol volatility multiplier override.
func (c *Center) SetVolMultiplier(symbol string, mult float64, ttl time.Duration) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOverride)
	}
	if mult <= 0 {
		return fmt.Errorf("%w: multiplier %.2f must be positive", ErrInvalidOverride, mult)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlLocked(symbol).VolMultiplier = &models.Override{
		Value:     mult,
		ExpiresAt: deadline(c.now(), ttl),
	}
	return nil
}

// SetPriceOverride pins the emitted price to a fixed value until expiry.
func (c *Center) SetPriceOverride(symbol string, price float64, ttl time.Duration) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOverride)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price %.5f must be positive", ErrInvalidOverride, price)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlLocked(symbol).PriceOverride = &models.Override{
		Value:     price,
		ExpiresAt: deadline(c.now(), ttl),
	}
	return nil
}

// ClearOverrides drops all manual controls for a symbol.
func (c *Center) ClearOverrides(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.controls, symbol)
}

// Control returns a copy of the symbol's manual control block.
func (c *Center) Control(symbol string) models.ManualControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc, ok := c.controls[symbol]
	if !ok {
		return models.ManualControl{Symbol: symbol}
	}
	return *mc
}

// EffectiveBias returns the active bias value and strength, if any.
func (c *Center) EffectiveBias(symbol string) (value, strength float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.controls[symbol]
	if mc == nil || !mc.Bias.Effective(c.now()) {
		return 0, 0, false
	}
	return mc.Bias.Value, mc.Bias.Strength, true
}

// EffectiveVolMultiplier returns the active volatility multiplier, if any.
func (c *Center) EffectiveVolMultiplier(symbol string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.controls[symbol]
	if mc == nil || !mc.VolMultiplier.Effective(c.now()) {
		return 0, false
	}
	return mc.VolMultiplier.Value, true
}

// EffectivePriceOverride returns the active fixed price, if any.
func (c *Center) EffectivePriceOverride(symbol string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mc := c.controls[symbol]
	if mc == nil || !mc.PriceOverride.Effective(c.now()) {
		return 0, false
	}
	return mc.PriceOverride.Value, true
}

// SetUserTargeting installs or replaces targeting for a user. Existing
// win/loss history for the same key is preserved.
func (c *Center) SetUserTargeting(t models.UserTargeting) error {
	if t.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidOverride)
	}
	if t.ForcedWins < 0 || t.ForcedLosses < 0 {
		return fmt.Errorf("%w: forced counters must be non-negative", ErrInvalidOverride)
	}
	if t.TargetWinRate < 0 || t.TargetWinRate > 1 {
		return fmt.Errorf("%w: target win rate %.2f outside [0,1]", ErrInvalidOverride, t.TargetWinRate)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := userKey(t.UserID, t.Symbol)
	if prev, ok := c.users[key]; ok {
		t.Wins = prev.Wins
		t.Losses = prev.Losses
	}
	c.users[key] = &t
	return nil
}

// UserTargeting returns a copy of the targeting entry for a user, trying the
// symbol-scoped entry first, then the global one.
func (c *Center) UserTargeting(userID, symbol string) (models.UserTargeting, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.users[userKey(userID, symbol)]; ok {
		return *t, true
	}
	if t, ok := c.users[userKey(userID, "")]; ok {
		return *t, true
	}
	return models.UserTargeting{}, false
}

// ClearUserTargeting removes targeting for a user.
func (c *Center) ClearUserTargeting(userID, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userKey(userID, symbol))
}

// ForceTradeOutcome pins the outcome of a single trade.
func (c *Center) ForceTradeOutcome(tradeID string, outcome models.Outcome) error {
	if tradeID == "" {
		return fmt.Errorf("%w: trade id is required", ErrInvalidOverride)
	}
	if outcome != models.OutcomeWin && outcome != models.OutcomeLose {
		return fmt.Errorf("%w: outcome must be WIN or LOSE", ErrInvalidOverride)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades[tradeID] = outcome
	return nil
}

// ConsumeForced resolves the forced outcome for a trade, if any, consuming
// one-shot state in the same critical section so two settlement attempts can
// never both observe it. Precedence: per-trade pin, then per-user counters,
// then target win rate steering.
func (c *Center) ConsumeForced(trade *models.TradeInfo) (models.Outcome, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out, ok := c.trades[trade.ID]; ok {
		delete(c.trades, trade.ID)
		return out, "trade_override", true
	}

	t := c.users[userKey(trade.UserID, trade.Symbol)]
	if t == nil {
		t = c.users[userKey(trade.UserID, "")]
	}
	if t == nil {
		return "", "", false
	}

	if t.ForcedWins > 0 {
		t.ForcedWins--
		return models.OutcomeWin, "user_counter", true
	}
	if t.ForcedLosses > 0 {
		t.ForcedLosses--
		return models.OutcomeLose, "user_counter", true
	}
	if t.TargetWinRate > 0 {
		total := t.Wins + t.Losses
		rate := 0.0
		if total > 0 {
			rate = float64(t.Wins) / float64(total)
		}
		if rate < t.TargetWinRate {
			return models.OutcomeWin, "target_rate", true
		}
	}
	return "", "", false
}

// RecordOutcome feeds a settled result back into target-rate tracking.
func (c *Center) RecordOutcome(userID, symbol string, outcome models.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.users[userKey(userID, symbol)]
	if t == nil {
		t = c.users[userKey(userID, "")]
	}
	if t == nil {
		return
	}
	switch outcome {
	case models.OutcomeWin:
		t.Wins++
	case models.OutcomeLose:
		t.Losses++
	}
}
