package models

import "time"

// Override is an admin-supplied value with an optional deadline. Expiry is
// checked lazily on every read through Effective; nothing purges overrides.
type Override struct {
	Value     float64    `json:"value"`
	Strength  float64    `json:"strength,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Effective reports whether the override applies at the given instant.
// A nil override or one with a past deadline is treated as absent.
func (o *Override) Effective(now time.Time) bool {
	if o == nil {
		return false
	}
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

// ManualControl carries the per-symbol admin overrides consulted by the
// price generator and the risk engine.
type ManualControl struct {
	Symbol        string    `json:"symbol"`
	Bias          *Override `json:"bias,omitempty"`           // value in [-100,100], strength in [0,1]
	VolMultiplier *Override `json:"vol_multiplier,omitempty"` // value > 0
	PriceOverride *Override `json:"price_override,omitempty"` // value > 0
}

// UserTargeting holds per-user forced outcome counters and an optional
// target win rate, optionally scoped to a single symbol. Counters are
// consumed by the risk engine when it services a settlement.
type UserTargeting struct {
	UserID        string  `json:"user_id"`
	Symbol        string  `json:"symbol,omitempty"` // empty = all symbols
	ForcedWins    int     `json:"forced_wins"`
	ForcedLosses  int     `json:"forced_losses"`
	TargetWinRate float64 `json:"target_win_rate"` // 0 disables steering
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
}
