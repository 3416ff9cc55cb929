// Package gateway abstracts the external card-payment processor behind a narrow
// charge-intent contract. Every call is tenant scoped: an intent owned by another tenant
// is reported as not found.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrInvalidAmount  = errors.New("invalid intent amount")
)

type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
	StatusRefunded              Status = "refunded"
)

type Intent struct {
	ID           string
	TenantID     string
	Amount       decimal.Decimal
	Deposit      decimal.Decimal
	Currency     string
	Status       Status
	ClientSecret string
	ExpiresAt    time.Time
	// ProviderRef is the processor's native id; empty for the mock.
	ProviderRef string
	Metadata    map[string]string
}

type CreateIntentRequest struct {
	TenantID string
	Amount   decimal.Decimal
	Deposit  decimal.Decimal
	Currency string
	Metadata map[string]string
}

type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	Get(ctx context.Context, tenantID, id string) (*Intent, error)
	Capture(ctx context.Context, tenantID, id string) (bool, error)
	Cancel(ctx context.Context, tenantID, id string) (bool, error)
	// Refund returns the full captured amount when amount is nil.
	Refund(ctx context.Context, tenantID, id string, amount *decimal.Decimal, reason string) (bool, error)
}

func validate(req CreateIntentRequest) error {
	if !req.Amount.IsPositive() || req.Deposit.IsNegative() || req.Deposit.GreaterThan(req.Amount) {
		return ErrInvalidAmount
	}
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
