package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a binary-option trade.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Outcome of a settled trade. A draw (exit == entry) refunds the stake.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
	OutcomeDraw Outcome = "DRAW"
)

// RiskConfig holds the per-symbol intervention parameters.
type RiskConfig struct {
	Symbol              string  `json:"symbol"`
	Enabled             bool    `json:"enabled"`
	ExposureThreshold   float64 `json:"exposure_threshold"`
	MinInterventionRate float64 `json:"min_intervention_rate"`
	MaxInterventionRate float64 `json:"max_intervention_rate"`
	SpreadMultiplier    float64 `json:"spread_multiplier"`
	PipSize             float64 `json:"pip_size"`
	PayoutPct           float64 `json:"payout_pct"`
}

// TradeInfo lives in the risk engine's exposure ledger from placement to
// settlement. The settlement scheduler references it by id, never copies it.
type TradeInfo struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	Direction  Direction `json:"direction"`
	PlacedAt   time.Time `json:"placed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SymbolExposure is derived from the live trade lists on every add/remove,
// never incrementally drifted.
type SymbolExposure struct {
	Symbol          string       `json:"symbol"`
	UpTrades        []*TradeInfo `json:"-"`
	DownTrades      []*TradeInfo `json:"-"`
	TotalUpAmount   float64      `json:"total_up_amount"`
	TotalDownAmount float64      `json:"total_down_amount"`
	NetExposure     float64      `json:"net_exposure"`
	ExposureRatio   float64      `json:"exposure_ratio"`
	BrokerRisk      float64      `json:"broker_risk"`
}

// ExitPriceResult is the fully auditable answer of the risk engine for one
// settlement request.
type ExitPriceResult struct {
	ExitPrice               float64 `json:"exit_price"`
	OriginalPrice           float64 `json:"original_price"`
	Influenced              bool    `json:"influenced"`
	InterventionProbability float64 `json:"intervention_probability"`
	Reason                  string  `json:"reason"`
}

// Settlement is the final record of one trade resolution.
type Settlement struct {
	TradeID    string          `json:"trade_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Outcome    Outcome         `json:"outcome"`
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price"`
	Stake      float64         `json:"stake"`
	Payout     decimal.Decimal `json:"payout"`
	Influenced bool            `json:"influenced"`
	SettledAt  time.Time       `json:"settled_at"`
}
