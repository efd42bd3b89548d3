package models

import "time"

// Intervention audit event types.
const (
	AuditIntervention   = "intervention"
	AuditNoIntervention = "no_intervention"
	AuditForcedOutcome  = "forced_outcome"
	AuditReconciliation = "reconciliation_required"
)

// InterventionAudit is emitted on every risk decision where exposure
// exceeded the threshold or a forced outcome applied, fired or not.
type InterventionAudit struct {
	ID                      string    `json:"id"`
	Symbol                  string    `json:"symbol"`
	EventType               string    `json:"event_type"`
	TradeID                 string    `json:"trade_id,omitempty"`
	UserID                  string    `json:"user_id,omitempty"`
	ExposureRatio           float64   `json:"exposure_ratio"`
	InterventionProbability float64   `json:"intervention_probability"`
	MarketPrice             float64   `json:"market_price"`
	AdjustedPrice           float64   `json:"adjusted_price"`
	Success                 bool      `json:"success"`
	At                      time.Time `json:"at"`
}

// User event types fanned out to subscribers.
const (
	EventTradePlaced  = "trade_placed"
	EventTradeVoided  = "trade_voided"
	EventTradeSettled = "trade_settled"
)

// UserEvent wraps a per-user notification for distribution.
type UserEvent struct {
	ID      string      `json:"id"`
	UserID  string      `json:"user_id"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}
