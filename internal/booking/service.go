// Package booking is the synchronous rental path: the caller already holds a payment
// intent and asks for the rental to be written and the intent captured.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/metrics"
	"github.com/ariefcatur/go-rental-settlement/internal/notify"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
	"github.com/ariefcatur/go-rental-settlement/internal/retry"
)

var (
	ErrCustomerRequired      = errors.New("customer id required")
	ErrPaymentIntentRequired = errors.New("payment intent id required")
	ErrAmountMismatch        = errors.New("payment intent amount does not match rental total")
	ErrIntentNotPayable      = errors.New("payment intent can no longer be captured")
	ErrIdempotencyConflict   = errors.New("idempotency key reused with different inputs")
)

// KeyCache is the optional fast path for idempotency keys. redisx.IdempotencyCache
// implements it.
type KeyCache interface {
	Lookup(ctx context.Context, tenantID, key string) (string, bool, error)
	Remember(ctx context.Context, tenantID, key, rentalID string) error
}

type CreateRequest struct {
	TenantID        string
	CustomerID      string
	Start           time.Time
	End             time.Time
	Lines           []pricing.Line
	Hourly          bool
	Hours           int
	PaymentIntentID string
	// IdempotencyKey defaults to one derived from PaymentIntentID.
	IdempotencyKey string
	Notes          string
}

func (r CreateRequest) key() string {
	if r.IdempotencyKey != "" {
		return r.IdempotencyKey
	}
	return "intent:" + r.PaymentIntentID
}

type Service struct {
	Store    rentals.Store
	Engine   *pricing.Engine
	Gateway  gateway.Gateway
	Cache    KeyCache
	Handoff  notify.Handoff
	Currency string
	Attempts int
	Backoff  time.Duration
}

func NewService(store rentals.Store, gw gateway.Gateway, currency string) *Service {
	return &Service{
		Store:    store,
		Engine:   pricing.NewEngine(store),
		Gateway:  gw,
		Currency: currency,
		Attempts: 3,
		Backoff:  200 * time.Millisecond,
	}
}

// Create writes the rental as Pending, captures the intent and confirms it. created is
// false when the idempotency key already named a rental with the same inputs.
func (s *Service) Create(ctx context.Context, req CreateRequest) (rental *rentals.Rental, created bool, err error) {
	if req.CustomerID == "" {
		return nil, false, ErrCustomerRequired
	}
	if req.PaymentIntentID == "" {
		return nil, false, ErrPaymentIntentRequired
	}
	key := req.key()
	log := logger.Get().With("tenant_id", req.TenantID, "idempotency_key", key)

	if existing, err := s.existing(ctx, req, key); err != nil || existing != nil {
		return existing, false, err
	}

	if _, err := s.Store.GetCustomer(ctx, req.TenantID, req.CustomerID); err != nil {
		return nil, false, err
	}

	q, err := s.Engine.Compute(ctx, pricing.Request{
		Start: req.Start, End: req.End, Lines: req.Lines,
		Hourly: req.Hourly, Hours: req.Hours,
		Strict: true, TenantID: req.TenantID,
	})
	if err != nil {
		return nil, false, err
	}

	in, err := s.Gateway.Get(ctx, req.TenantID, req.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	if !in.Amount.Equal(q.Total) {
		log.WarnContext(ctx, "payment intent amount mismatch",
			"intent_id", in.ID, "intent_amount", in.Amount.StringFixed(2), "total", q.Total.StringFixed(2))
		return nil, false, fmt.Errorf("%w: intent %s, computed %s", ErrAmountMismatch, in.Amount.StringFixed(2), q.Total.StringFixed(2))
	}
	if in.Status == gateway.StatusCanceled || in.Status == gateway.StatusRefunded {
		return nil, false, fmt.Errorf("%w: status %s", ErrIntentNotPayable, in.Status)
	}

	currency := in.Currency
	if currency == "" {
		currency = s.Currency
	}
	draft := &rentals.Rental{
		TenantID:       req.TenantID,
		CustomerID:     req.CustomerID,
		Start:          req.Start,
		End:            req.End,
		Status:         rentals.StatusPending,
		TotalAmount:    q.Total,
		DepositAmount:  q.Deposit,
		Currency:       currency,
		PaymentRef:     in.ID,
		PaymentStatus:  rentals.PaymentPending,
		IdempotencyKey: key,
		Notes:          req.Notes,
	}
	for _, l := range q.Lines {
		draft.Items = append(draft.Items, rentals.RentalItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Periods:   l.Periods,
			Subtotal:  l.Total,
		})
	}

	rental, existed, err := s.Store.CreateRental(ctx, draft)
	if err != nil {
		return nil, false, err
	}
	if existed {
		// lost the insert race to a request with the same key
		if !sameInputs(rental, req) {
			return nil, false, ErrIdempotencyConflict
		}
		return rental, false, nil
	}
	log = log.With("rental_id", rental.ID)
	s.remember(ctx, req.TenantID, key, rental.ID)

	if err := s.capture(ctx, rental); err != nil {
		// the rental stays Pending; a later payment_intent.succeeded confirms it
		log.ErrorContext(ctx, "payment capture failed", "intent_id", in.ID, "error", err)
		return rental, true, nil
	}
	moved, err := s.Store.UpdateStatus(ctx, rental.TenantID, rental.ID, rentals.StatusPending, rentals.StatusConfirmed, rentals.PaymentSucceeded)
	if err != nil {
		return nil, false, fmt.Errorf("confirm rental: %w", err)
	}
	if moved {
		rental.Status, rental.PaymentStatus = rentals.StatusConfirmed, rentals.PaymentSucceeded
		metrics.RentalsMaterialized.WithLabelValues("api").Inc()
		log.InfoContext(ctx, "rental confirmed", "total", rental.TotalAmount.StringFixed(2))
		s.notify(ctx, log, rental)
	} else if fresh, err := s.Store.GetRental(ctx, rental.TenantID, rental.ID); err == nil {
		rental = fresh
	}
	return rental, true, nil
}

func (s *Service) existing(ctx context.Context, req CreateRequest, key string) (*rentals.Rental, error) {
	if s.Cache != nil {
		id, ok, err := s.Cache.Lookup(ctx, req.TenantID, key)
		if err != nil {
			logger.WarnContext(ctx, "idempotency cache lookup failed", "error", err)
		}
		if ok {
			r, err := s.Store.GetRental(ctx, req.TenantID, id)
			if err == nil {
				return checkSame(r, req)
			}
			if !errors.Is(err, rentals.ErrRentalNotFound) {
				return nil, err
			}
		}
	}
	r, err := s.Store.FindRentalByKey(ctx, req.TenantID, key)
	if errors.Is(err, rentals.ErrRentalNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.remember(ctx, req.TenantID, key, r.ID)
	return checkSame(r, req)
}

func checkSame(r *rentals.Rental, req CreateRequest) (*rentals.Rental, error) {
	if !sameInputs(r, req) {
		return nil, ErrIdempotencyConflict
	}
	return r, nil
}

// sameInputs compares what the caller controls: customer, window, intent and the
// merged quantities per product.
func sameInputs(r *rentals.Rental, req CreateRequest) bool {
	if r.CustomerID != req.CustomerID || r.PaymentRef != req.PaymentIntentID ||
		!r.Start.Equal(req.Start) || !r.End.Equal(req.End) {
		return false
	}
	have := map[string]int{}
	for _, it := range r.Items {
		have[it.ProductID] += it.Quantity
	}
	want := map[string]int{}
	for _, l := range req.Lines {
		want[l.ProductID] += l.Quantity
	}
	if len(have) != len(want) {
		return false
	}
	for id, n := range want {
		if have[id] != n {
			return false
		}
	}
	return true
}

func (s *Service) remember(ctx context.Context, tenantID, key, id string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Remember(ctx, tenantID, key, id); err != nil {
		logger.WarnContext(ctx, "idempotency cache write failed", "error", err)
	}
}

func (s *Service) capture(ctx context.Context, r *rentals.Rental) error {
	return retry.Do(ctx, s.Attempts, s.Backoff, func(ctx context.Context) error {
		ok, err := s.Gateway.Capture(ctx, r.TenantID, r.PaymentRef)
		if errors.Is(err, gateway.ErrIntentNotFound) {
			return retry.Permanent{Err: err}
		}
		if err != nil {
			return err
		}
		if !ok {
			return retry.Permanent{Err: ErrIntentNotPayable}
		}
		return nil
	})
}

func (s *Service) notify(ctx context.Context, log *slog.Logger, r *rentals.Rental) {
	if s.Handoff == nil {
		return
	}
	c, err := s.Store.GetCustomer(ctx, r.TenantID, r.CustomerID)
	if err != nil {
		log.ErrorContext(ctx, "confirmation handoff skipped", "error", err)
		return
	}
	if err := s.Handoff.Handoff(ctx, r, c); err != nil {
		metrics.HandoffFailures.WithLabelValues("handoff").Inc()
		log.ErrorContext(ctx, "confirmation handoff failed", "error", err)
	}
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*rentals.Rental, error) {
	return s.Store.GetRental(ctx, tenantID, id)
}

// Cancel moves a rental to Cancelled. Cancelling twice is not an error. An uncaptured
// intent is released at the processor on a best-effort basis.
func (s *Service) Cancel(ctx context.Context, tenantID, id string) error {
	for attempt := 0; attempt < 3; attempt++ {
		r, err := s.Store.GetRental(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if r.Status == rentals.StatusCancelled {
			return nil
		}
		if !rentals.CanTransition(r.Status, rentals.StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", rentals.ErrInvalidTransition, r.Status, rentals.StatusCancelled)
		}
		payment := r.PaymentStatus
		if payment == rentals.PaymentPending {
			payment = rentals.PaymentCanceled
		}
		moved, err := s.Store.UpdateStatus(ctx, tenantID, id, r.Status, rentals.StatusCancelled, payment)
		if err != nil {
			return err
		}
		if !moved {
			continue
		}
		logger.InfoContext(ctx, "rental cancelled", "tenant_id", tenantID, "rental_id", id, "from", r.Status)
		if r.PaymentStatus == rentals.PaymentPending && r.PaymentRef != "" && s.Gateway != nil {
			if _, err := s.Gateway.Cancel(ctx, tenantID, r.PaymentRef); err != nil {
				logger.WarnContext(ctx, "payment intent cancel failed", "rental_id", id, "error", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: rental %s kept changing", rentals.ErrInvalidTransition, id)
}
