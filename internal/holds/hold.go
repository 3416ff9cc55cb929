// Package holds manages short-lived advisory claims on inventory while a customer is
// paying. Holds never block rentals or other holds; they only feed client-side UX.
package holds

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidQuantity  = errors.New("invalid hold quantity")
	ErrInvalidDateRange = errors.New("invalid hold date range")
	ErrInvalidTTL       = errors.New("invalid hold ttl")
)

type Hold struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CustomerID string    `json:"customerId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Live reports whether the hold still counts at now. expires_at <= now is dead.
func (h Hold) Live(now time.Time) bool { return h.ExpiresAt.After(now) }

// Store persists holds. Every read takes now so expired rows are filtered even when the
// sweep has not run yet.
type Store interface {
	Insert(ctx context.Context, h Hold) error
	// Delete removes a live hold and reports whether one was removed.
	Delete(ctx context.Context, tenantID, id string, now time.Time) (bool, error)
	Active(ctx context.Context, tenantID, productID string, now time.Time) ([]Hold, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
