package models

import "time"

// MarketClass distinguishes instruments with a weekly session from
// always-open ones.
type MarketClass string

const (
	MarketForex  MarketClass = "forex"
	MarketCrypto MarketClass = "crypto"
)

// PriceMode is the per-symbol quoting mode selected by the session scheduler.
type PriceMode string

const (
	ModeReal      PriceMode = "real"
	ModeOTC       PriceMode = "otc"
	ModeAnchoring PriceMode = "anchoring"
)

// PriceConfig holds the per-symbol parameters of the synthetic price process.
// Immutable between admin edits; a reload swaps the whole struct.
type PriceConfig struct {
	Symbol string      `json:"symbol"`
	Market MarketClass `json:"market"`

	PipSize     float64 `json:"pip_size"`
	SpreadPips  float64 `json:"spread_pips"`
	PriceOffset float64 `json:"price_offset"`

	BaseVolatility       float64 `json:"base_volatility"`
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
	MomentumFactor       float64 `json:"momentum_factor"`

	// GARCH(1,1) clustering parameters.
	GarchAlpha float64 `json:"garch_alpha"`
	GarchBeta  float64 `json:"garch_beta"`
	GarchOmega float64 `json:"garch_omega"`

	MeanReversion   float64 `json:"mean_reversion"`
	MaxDeviationPct float64 `json:"max_deviation_pct"`

	HistorySize int `json:"history_size"`
}

// HistoryPoint is one entry of the bounded per-symbol price history.
type HistoryPoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// PriceState is the live mutable state of one symbol. It is owned by the
// price generator; callers receive copies.
type PriceState struct {
	Symbol        string         `json:"symbol"`
	CurrentPrice  float64        `json:"current_price"`
	AnchorPrice   float64        `json:"anchor_price"`
	LastRealPrice float64        `json:"last_real_price"`
	RealPriceAt   time.Time      `json:"real_price_at"`
	Volatility    float64        `json:"volatility"`
	Momentum      float64        `json:"momentum"`
	LastReturn    float64        `json:"last_return"`
	UpdatedAt     time.Time      `json:"updated_at"`
	History       []HistoryPoint `json:"history,omitempty"`
}

// PriceTick is one emitted quote. Not persisted by the core; handed to the
// distribution layer and the optional history store.
type PriceTick struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Mode       PriceMode `json:"mode"`
	Volatility float64   `json:"volatility"`
	Change     float64   `json:"change"`
	ChangePct  float64   `json:"change_pct"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarketSession describes whether the real market is open and when it flips.
type MarketSession struct {
	Symbol    string    `json:"symbol"`
	Open      bool      `json:"open"`
	NextOpen  time.Time `json:"next_open,omitempty"`
	NextClose time.Time `json:"next_close,omitempty"`
}

// RealQuote is a real-market observation delivered by a feed adapter.
type RealQuote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}
