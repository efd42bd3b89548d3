package repository

import (
	"context"
	"time"

	"QuoteForge/internal/domain/models"

	"github.com/shopspring/decimal"
)

// RealFeed streams real-market observations for the configured symbols.
// Absence of the feed is a normal operating condition, not an error.
type RealFeed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.RealQuote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Broadcaster fans out ticks and user events to subscribers. Calls must be
// cheap; slow consumers are the implementation's problem, never the core's.
type Broadcaster interface {
	BroadcastTick(ctx context.Context, tick *models.PriceTick) error
	BroadcastEvent(ctx context.Context, event *models.UserEvent) error
	Close() error
}

// BalanceLedger is the external money ledger. Failures must be retryable.
type BalanceLedger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
	Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
}

// ConfigStore persists per-symbol configuration and admin edits.
type ConfigStore interface {
	Symbols(ctx context.Context) ([]string, error)
	LoadPriceConfig(ctx context.Context, symbol string) (*models.PriceConfig, error)
	LoadRiskConfig(ctx context.Context, symbol string) (*models.RiskConfig, error)
	SavePriceConfig(ctx context.Context, cfg *models.PriceConfig) error
	SaveRiskConfig(ctx context.Context, cfg *models.RiskConfig) error
	Close() error
}

// TickStore is the optional tick history sink.
type TickStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, tick *models.PriceTick) error
	StoreBatch(ctx context.Context, ticks []*models.PriceTick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceTick, error)
	Health(ctx context.Context) error
	Close() error
}

// ActivityLog receives the audit record of every risk decision.
type ActivityLog interface {
	RecordIntervention(ctx context.Context, audit *models.InterventionAudit) error
}

// RetryQueue schedules deferred re-execution of failed settlement work.
type RetryQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Metrics is the domain-facing metrics recorder.
type Metrics interface {
	RecordTick(symbol string, mode string)
	RecordLastPrice(symbol string, price float64)
	RecordExposure(symbol string, ratio float64)
	RecordIntervention(symbol string, result string)
	RecordSettlement(symbol string, outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
