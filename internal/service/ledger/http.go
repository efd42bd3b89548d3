package ledger

import (
	"context"
	"fmt"
	"time"

	"QuoteForge/internal/domain/repository"
	pkghttp "QuoteForge/pkg/http"

	"github.com/shopspring/decimal"
)

// HTTPLedger talks to the external balance service. The engine owns retries;
// this client performs exactly one attempt per call.
type HTTPLedger struct {
	client  *pkghttp.Client
	baseURL string
}

// NewHTTPLedger creates a ledger client for the given base URL.
func NewHTTPLedger(baseURL string, timeout time.Duration) repository.BalanceLedger {
	return &HTTPLedger{
		client:  pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		baseURL: baseURL,
	}
}

type mutationRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
	Ref    string `json:"ref"`
}

func (l *HTTPLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return l.post(ctx, "/v1/balance/credit", userID, amount, ref)
}

func (l *HTTPLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	return l.post(ctx, "/v1/balance/debit", userID, amount, ref)
}

func (l *HTTPLedger) post(ctx context.Context, path, userID string, amount decimal.Decimal, ref string) error {
	req := mutationRequest{UserID: userID, Amount: amount.String(), Ref: ref}
	if err := l.client.PostJSON(ctx, l.baseURL+path, req, nil); err != nil {
		return fmt.Errorf("ledger %s: %w", path, err)
	}
	return nil
}
