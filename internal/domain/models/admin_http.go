package models

// Request DTOs for the thin admin/control HTTP surface. Validation tags are
// enforced at the boundary; malformed overrides never reach the engine.

type SetBiasRequest struct {
	Symbol   string  `json:"symbol" validate:"required"`
	Bias     float64 `json:"bias" validate:"gte=-100,lte=100"`
	Strength float64 `json:"strength" default:"1" validate:"gte=0,lte=1"`
	TTL      string  `json:"ttl,omitempty"` // Go duration, empty = no expiry
}

type SetVolMultiplierRequest struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Multiplier float64 `json:"multiplier" validate:"gt=0,lte=100"`
	TTL        string  `json:"ttl,omitempty"`
}

type SetPriceOverrideRequest struct {
	Symbol string  `json:"symbol" validate:"required"`
	Price  float64 `json:"price" validate:"gt=0"`
	TTL    string  `json:"ttl,omitempty"`
}

type SetUserTargetingRequest struct {
	UserID        string  `json:"user_id" validate:"required"`
	Symbol        string  `json:"symbol,omitempty"`
	ForcedWins    int     `json:"forced_wins" validate:"gte=0"`
	ForcedLosses  int     `json:"forced_losses" validate:"gte=0"`
	TargetWinRate float64 `json:"target_win_rate" validate:"gte=0,lte=1"`
}

type ForceTradeOutcomeRequest struct {
	TradeID string `json:"trade_id" validate:"required"`
	Outcome string `json:"outcome" validate:"required,oneof=WIN LOSE"`
}

type SetRiskConfigRequest struct {
	Symbol              string  `json:"symbol" validate:"required"`
	Enabled             bool    `json:"enabled"`
	ExposureThreshold   float64 `json:"exposure_threshold" validate:"gte=0,lt=1"`
	MinInterventionRate float64 `json:"min_intervention_rate" validate:"gte=0,lte=1"`
	MaxInterventionRate float64 `json:"max_intervention_rate" validate:"gte=0,lte=1"`
	SpreadMultiplier    float64 `json:"spread_multiplier" default:"1" validate:"gte=0"`
	PayoutPct           float64 `json:"payout_pct" default:"85" validate:"gt=0,lte=100"`
}

type PlaceTradeRequest struct {
	TradeID       string  `json:"trade_id,omitempty"`
	UserID        string  `json:"user_id" validate:"required"`
	Symbol        string  `json:"symbol" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	Direction     string  `json:"direction" validate:"required,oneof=UP DOWN"`
	ExpirySeconds int     `json:"expiry_seconds" default:"60" validate:"gt=0,lte=86400"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	From   string `query:"from,omitempty"`
	To     string `query:"to,omitempty"`
	Limit  int    `query:"limit" default:"200" validate:"gte=1,lte=5000"`
}
