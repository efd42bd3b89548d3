package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryLedgerRoundtrip(t *testing.T) {
	l := NewMemoryLedger(decimal.NewFromInt(1000))
	ctx := context.Background()

	if err := l.Debit(ctx, "u1", decimal.NewFromInt(100), "stake:t1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if err := l.Credit(ctx, "u1", decimal.NewFromInt(185), "payout:t1"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got := l.Balance("u1"); !got.Equal(decimal.NewFromInt(1085)) {
		t.Fatalf("balance = %v, want 1085", got)
	}
}

func TestMemoryLedgerInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger(decimal.NewFromInt(50))
	err := l.Debit(context.Background(), "u1", decimal.NewFromInt(100), "stake:t1")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Balance("u1"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("failed debit must not touch balance: %v", got)
	}
}

func TestMemoryLedgerSeedsOpeningBalance(t *testing.T) {
	l := NewMemoryLedger(decimal.NewFromInt(500))
	if got := l.Balance("fresh"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("opening balance = %v, want 500", got)
	}
}
