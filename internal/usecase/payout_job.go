package usecase

import (
	"context"
	"fmt"

	"QuoteForge/internal/domain/models"
	"QuoteForge/pkg/logger"
	"QuoteForge/pkg/queue"
)

// PayoutJob replays deferred settlement credits from the retry queue. A
// returned error re-schedules the job until the queue's retry limit moves it
// to the dead-letter list for manual reconciliation.
type PayoutJob struct {
	engine *MarketEngine
	log    *logger.Logger
}

// NewPayoutJob creates the queue job bound to the engine's ledger.
func NewPayoutJob(engine *MarketEngine, log *logger.Logger) *PayoutJob {
	return &PayoutJob{engine: engine, log: log}
}

func (j *PayoutJob) Name() string { return "settlement_payout" }

func (j *PayoutJob) Type() string { return PayoutJobType }

func (j *PayoutJob) Handle(ctx context.Context, payload interface{}) error {
	st, err := queue.ParsePayload[models.Settlement](payload)
	if err != nil {
		return fmt.Errorf("parse settlement payload: %w", err)
	}
	if err := j.engine.ReplayPayout(ctx, st); err != nil {
		return fmt.Errorf("replay payout %s: %w", st.TradeID, err)
	}
	j.log.Info("deferred payout credited",
		logger.String("trade_id", st.TradeID),
		logger.String("user_id", st.UserID),
		logger.String("payout", st.Payout.String()))
	return nil
}

var _ queue.Job = (*PayoutJob)(nil)
