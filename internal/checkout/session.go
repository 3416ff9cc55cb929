package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

var ErrCustomerRequired = errors.New("customer id or email required")

type SessionRequest struct {
	TenantID string
	Start    time.Time
	End      time.Time
	Lines    []pricing.Line
	Hourly   bool
	Hours    int
	Customer rentals.CustomerSnapshot
}

type Session struct {
	ID             string
	URL            string
	ExpiresAt      time.Time
	IdempotencyKey string
	Quote          *pricing.Quote
}

type Service struct {
	Engine    *pricing.Engine
	Inventory rentals.AvailabilityReader
	Gateway   gateway.Gateway
	Codec     *Codec
	Currency  string
	BaseURL   string
	NewKey    func() string
}

// CreateSession prices the cart, checks capacity, packs the payload into the intent
// metadata and opens the intent. Nothing is written locally; the rentals appear when the
// processor reports the checkout completed.
func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Customer.CustomerID == "" && req.Customer.Email == "" {
		return nil, ErrCustomerRequired
	}
	preq := pricing.Request{Start: req.Start, End: req.End, Lines: req.Lines, Hourly: req.Hourly, Hours: req.Hours}
	q, err := s.Engine.Compute(ctx, preq)
	if err != nil {
		return nil, err
	}

	if s.Inventory != nil {
		want := make(map[string]int, len(q.Lines))
		for _, l := range q.Lines {
			want[l.ProductID] = l.Quantity
		}
		if err := rentals.CheckAvailability(ctx, s.Inventory, rentals.Window{Start: req.Start, End: req.End}, want); err != nil {
			return nil, err
		}
	}

	newKey := s.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	key := newKey()
	md, err := s.Codec.Encode(NewPayload(key, req.Customer, preq, s.Currency, q))
	if err != nil {
		return nil, err
	}
	md[MetaTenantID] = req.TenantID
	md[MetaIdempotencyKey] = key

	in, err := s.Gateway.CreateIntent(ctx, gateway.CreateIntentRequest{
		TenantID: req.TenantID,
		Amount:   q.Total,
		Deposit:  q.Deposit,
		Currency: s.Currency,
		Metadata: md,
	})
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}
	logger.InfoContext(ctx, "checkout session created",
		"tenant_id", req.TenantID, "session_id", in.ID, "idempotency_key", key,
		"total", q.Total.StringFixed(2), "tenants", len(q.Breakdowns))

	return &Session{
		ID:             in.ID,
		URL:            s.BaseURL + "/" + in.ID,
		ExpiresAt:      in.ExpiresAt,
		IdempotencyKey: key,
		Quote:          q,
	}, nil
}
