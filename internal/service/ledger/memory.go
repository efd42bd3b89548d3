package ledger

import (
	"context"
	"errors"
	"sync"

	"QuoteForge/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a debit would go negative.
var ErrInsufficientBalance = errors.New("insufficient balance")

// MemoryLedger is the development and test backend. Unknown users start with
// the configured opening balance on first touch.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	opening  decimal.Decimal
}

// NewMemoryLedger creates a ledger seeding new users with opening.
func NewMemoryLedger(opening decimal.Decimal) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]decimal.Decimal),
		opening:  opening,
	}
}

func (l *MemoryLedger) balanceLocked(userID string) decimal.Decimal {
	b, ok := l.balances[userID]
	if !ok {
		b = l.opening
		l.balances[userID] = b
	}
	return b
}

func (l *MemoryLedger) Credit(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = l.balanceLocked(userID).Add(amount)
	return nil
}

func (l *MemoryLedger) Debit(_ context.Context, userID string, amount decimal.Decimal, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balanceLocked(userID)
	if b.LessThan(amount) {
		return ErrInsufficientBalance
	}
	l.balances[userID] = b.Sub(amount)
	return nil
}

// Balance returns the current balance for a user.
func (l *MemoryLedger) Balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(userID)
}

var _ repository.BalanceLedger = (*MemoryLedger)(nil)
