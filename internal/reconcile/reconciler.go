// Package reconcile turns asynchronous processor callbacks into durable rentals. A
// checkout completion runs Validate, Materialize and Notify for every tenant breakdown
// in the payload; payment status events move existing rentals through the state machine.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/checkout"
	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/metrics"
	"github.com/ariefcatur/go-rental-settlement/internal/notify"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

// ErrReconciliationMismatch marks a breakdown whose recomputed amounts differ from what
// was authorized. The tenant is skipped and needs manual follow-up.
var ErrReconciliationMismatch = errors.New("reconciliation mismatch")

// Outcome reports what Handle did. Transient failures are returned as the error instead.
type Outcome struct {
	Created    []string // rental ids
	Duplicates []string // tenant ids already materialized
	Mismatched []string // tenant ids skipped by validation
	Conflicts  []string // tenant ids rejected for capacity
	Updated    []string // rental ids moved by a payment event
	Dropped    bool     // payload could not be decoded
	Ignored    bool     // event type not handled
}

type Reconciler struct {
	Store   rentals.Store
	Engine  *pricing.Engine
	Codec   *checkout.Codec
	Gateway gateway.Gateway
	Handoff notify.Handoff
}

func New(store rentals.Store, gw gateway.Gateway, codec *checkout.Codec, handoff notify.Handoff) *Reconciler {
	return &Reconciler{Store: store, Engine: pricing.NewEngine(store), Codec: codec, Gateway: gw, Handoff: handoff}
}

// Handle processes one event. It returns an error only when the event should be
// redelivered; everything permanent is acknowledged and reported in the Outcome.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (*Outcome, error) {
	log := logger.Get().With("event_id", ev.ID, "event_type", ev.Type, "session_id", ev.SessionID)

	switch ev.Type {
	case EventCheckoutCompleted:
		return r.checkoutCompleted(ctx, log, ev)
	case EventPaymentSucceeded:
		out, err := r.paymentEvent(ctx, log, ev, rentals.StatusConfirmed, rentals.PaymentSucceeded)
		if err != nil || len(out.Updated) > 0 || !checkout.HasPayload(ev.Metadata) {
			return out, err
		}
		// no rental yet but the event carries the checkout payload
		return r.checkoutCompleted(ctx, log, ev)
	case EventPaymentFailed:
		return r.paymentEvent(ctx, log, ev, fallback(ev, rentals.StatusPending), rentals.PaymentFailed)
	case EventPaymentCanceled:
		return r.paymentEvent(ctx, log, ev, fallback(ev, rentals.StatusCancelled), rentals.PaymentCanceled)
	case EventChargeRefunded:
		return r.paymentEvent(ctx, log, ev, rentals.StatusCancelled, rentals.PaymentCanceled)
	default:
		log.DebugContext(ctx, "ignoring webhook event")
		return &Outcome{Ignored: true}, nil
	}
}

func fallback(ev Event, def rentals.Status) rentals.Status {
	if ev.Fallback != "" {
		return ev.Fallback
	}
	return def
}

func (r *Reconciler) payload(ctx context.Context, ev Event) (*checkout.Payload, error) {
	md := ev.Metadata
	if !checkout.HasPayload(md) && r.Gateway != nil && ev.SessionID != "" {
		tenant := ev.TenantID
		if tenant == "" {
			tenant = md[checkout.MetaTenantID]
		}
		in, err := r.Gateway.Get(ctx, tenant, ev.SessionID)
		if err != nil {
			if errors.Is(err, gateway.ErrIntentNotFound) {
				return nil, fmt.Errorf("%w: %v", checkout.ErrPayloadMissing, err)
			}
			return nil, transient{err}
		}
		md = in.Metadata
	}
	return r.Codec.Decode(md)
}

type transient struct{ error }

func (t transient) Unwrap() error { return t.error }

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, ev Event) (*Outcome, error) {
	out := &Outcome{}
	p, err := r.payload(ctx, ev)
	if err != nil {
		var t transient
		if errors.As(err, &t) {
			return out, fmt.Errorf("load checkout payload: %w", t.error)
		}
		log.ErrorContext(ctx, "dropping checkout event with undecodable payload", "error", err)
		out.Dropped = true
		return out, nil
	}
	log = log.With("idempotency_key", p.Key)

	splits := pricing.SplitDeposit(p.Deposit, p.Totals())
	var errs []error
	for i, b := range p.Tenants {
		r.processTenant(ctx, log.With("tenant_id", b.TenantID), ev, p, b, splits[i], out, &errs)
	}
	return out, errors.Join(errs...)
}

func (r *Reconciler) processTenant(ctx context.Context, log *slog.Logger, ev Event, p *checkout.Payload,
	b checkout.TenantBreakdown, expectedDeposit decimal.Decimal, out *Outcome, errs *[]error) {
	key := p.TenantKey(b.TenantID)

	if _, err := r.Store.FindRentalByKey(ctx, b.TenantID, key); err == nil {
		out.Duplicates = append(out.Duplicates, b.TenantID)
		return
	} else if !errors.Is(err, rentals.ErrRentalNotFound) {
		*errs = append(*errs, fmt.Errorf("tenant %s: %w", b.TenantID, err))
		return
	}

	q, err := r.Validate(ctx, p, b, expectedDeposit)
	if err != nil {
		if !errors.Is(err, ErrReconciliationMismatch) {
			*errs = append(*errs, fmt.Errorf("tenant %s: %w", b.TenantID, err))
			return
		}
		metrics.ReconciliationMismatches.Inc()
		log.ErrorContext(ctx, "reconciliation mismatch, tenant skipped",
			"error", err, "authorized_total", b.Total.StringFixed(2), "authorized_deposit", b.Deposit.StringFixed(2),
			"payload_total", p.Total.StringFixed(2), "payload_deposit", p.Deposit.StringFixed(2), "items", len(b.Items))
		out.Mismatched = append(out.Mismatched, b.TenantID)
		return
	}

	rental, customer, existed, err := r.Materialize(ctx, ev, p, b, q)
	switch {
	case errors.Is(err, rentals.ErrInsufficientAvailability), errors.Is(err, rentals.ErrProductNotFound):
		log.ErrorContext(ctx, "paid breakdown could not be booked", "error", err)
		out.Conflicts = append(out.Conflicts, b.TenantID)
		return
	case err != nil:
		*errs = append(*errs, fmt.Errorf("tenant %s: %w", b.TenantID, err))
		return
	case existed:
		out.Duplicates = append(out.Duplicates, b.TenantID)
		return
	}
	metrics.RentalsMaterialized.WithLabelValues("webhook").Inc()
	out.Created = append(out.Created, rental.ID)
	log.InfoContext(ctx, "rental materialized", "rental_id", rental.ID, "total", rental.TotalAmount.StringFixed(2))

	r.Notify(ctx, log, rental, customer)
}

// Validate re-prices the breakdown against live products and checks the authorized
// amounts. The payload's own numbers are never used unverified.
func (r *Reconciler) Validate(ctx context.Context, p *checkout.Payload, b checkout.TenantBreakdown, expectedDeposit decimal.Decimal) (*pricing.Quote, error) {
	sum := decimal.Zero
	for _, t := range p.Totals() {
		sum = sum.Add(t)
	}
	if !sum.Equal(p.Total) {
		return nil, fmt.Errorf("%w: breakdown totals %s != payload total %s", ErrReconciliationMismatch, sum, p.Total)
	}
	if want := pricing.Deposit(p.Total); !want.Equal(p.Deposit) {
		return nil, fmt.Errorf("%w: payload deposit %s != %s", ErrReconciliationMismatch, p.Deposit, want)
	}
	if !b.Deposit.Equal(expectedDeposit) {
		return nil, fmt.Errorf("%w: deposit share %s != %s", ErrReconciliationMismatch, b.Deposit, expectedDeposit)
	}

	q, err := r.Engine.Compute(ctx, p.Request(b))
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrProductsUnavailable), errors.Is(err, pricing.ErrCrossTenantNotAllowed),
			errors.Is(err, pricing.ErrInvalidDateRange), errors.Is(err, pricing.ErrEmptyLineSet),
			errors.Is(err, pricing.ErrInvalidQuantity):
			return nil, fmt.Errorf("%w: %v", ErrReconciliationMismatch, err)
		}
		return nil, err
	}
	if !q.Total.Equal(b.Total) {
		return nil, fmt.Errorf("%w: recomputed total %s != authorized %s", ErrReconciliationMismatch, q.Total, b.Total)
	}
	return q, nil
}

// Materialize resolves the customer and writes the confirmed rental. existed reports that
// a concurrent delivery won the insert.
func (r *Reconciler) Materialize(ctx context.Context, ev Event, p *checkout.Payload, b checkout.TenantBreakdown,
	q *pricing.Quote) (*rentals.Rental, *rentals.Customer, bool, error) {
	customer, err := r.Store.ResolveCustomer(ctx, b.TenantID, p.Customer)
	if err != nil {
		return nil, nil, false, fmt.Errorf("resolve customer: %w", err)
	}

	rental := &rentals.Rental{
		TenantID:       b.TenantID,
		CustomerID:     customer.ID,
		Start:          p.Start,
		End:            p.End,
		Status:         rentals.StatusConfirmed,
		TotalAmount:    b.Total,
		DepositAmount:  b.Deposit,
		Currency:       p.Currency,
		PaymentRef:     ev.ref(),
		PaymentStatus:  rentals.PaymentSucceeded,
		IdempotencyKey: p.TenantKey(b.TenantID),
		Notes:          "checkout " + ev.SessionID,
	}
	for _, l := range q.Lines {
		rental.Items = append(rental.Items, rentals.RentalItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Periods:   l.Periods,
			Subtotal:  l.Total,
		})
	}

	created, existed, err := r.Store.CreateRental(ctx, rental)
	if err != nil {
		return nil, nil, false, err
	}
	return created, customer, existed, nil
}

// Notify hands the rental downstream. Failures are logged and never propagated.
func (r *Reconciler) Notify(ctx context.Context, log *slog.Logger, rental *rentals.Rental, customer *rentals.Customer) {
	if r.Handoff == nil {
		return
	}
	if err := r.Handoff.Handoff(ctx, rental, customer); err != nil {
		metrics.HandoffFailures.WithLabelValues("handoff").Inc()
		log.ErrorContext(ctx, "confirmation handoff failed", "rental_id", rental.ID, "error", err)
	}
}

func (r *Reconciler) locate(ctx context.Context, ev Event) ([]*rentals.Rental, error) {
	if ref := ev.ref(); ref != "" {
		found, err := r.Store.FindRentalsByPaymentRef(ctx, ref)
		if err != nil || len(found) > 0 {
			return found, err
		}
	}
	if key := ev.Metadata[checkout.MetaIdempotencyKey]; key != "" {
		found, err := r.Store.FindRentalsByKeyPrefix(ctx, key)
		if err != nil || len(found) > 0 {
			return found, err
		}
	}
	tenant, id := ev.Metadata[checkout.MetaTenantID], ev.Metadata[checkout.MetaRentalID]
	if tenant == "" {
		tenant = ev.TenantID
	}
	if tenant != "" && id != "" {
		rt, err := r.Store.GetRental(ctx, tenant, id)
		if errors.Is(err, rentals.ErrRentalNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []*rentals.Rental{rt}, nil
	}
	return nil, nil
}

func (r *Reconciler) paymentEvent(ctx context.Context, log *slog.Logger, ev Event, target rentals.Status,
	payment rentals.PaymentStatus) (*Outcome, error) {
	out := &Outcome{}
	found, err := r.locate(ctx, ev)
	if err != nil {
		return out, fmt.Errorf("locate rentals: %w", err)
	}
	if len(found) == 0 {
		log.InfoContext(ctx, "no rentals matched payment event")
		return out, nil
	}

	for _, rt := range found {
		next, ok := nextStatus(rt.Status, target, payment)
		if !ok {
			log.WarnContext(ctx, "payment event does not apply", "rental_id", rt.ID, "status", rt.Status, "target", target)
			continue
		}
		if next == rt.Status && rt.PaymentStatus == payment {
			continue
		}
		moved, err := r.Store.UpdateStatus(ctx, rt.TenantID, rt.ID, rt.Status, next, payment)
		if err != nil {
			return out, fmt.Errorf("update rental %s: %w", rt.ID, err)
		}
		if !moved {
			log.WarnContext(ctx, "rental changed concurrently, skipped", "rental_id", rt.ID)
			continue
		}
		log.InfoContext(ctx, "rental payment updated", "tenant_id", rt.TenantID, "rental_id", rt.ID,
			"from", rt.Status, "to", next, "payment_status", payment)
		out.Updated = append(out.Updated, rt.ID)
	}
	return out, nil
}

// nextStatus decides where a payment event moves a rental. Succeeded only promotes
// Draft or Pending; a rental already past that keeps its status but records the payment.
func nextStatus(current, target rentals.Status, payment rentals.PaymentStatus) (rentals.Status, bool) {
	if current == target {
		return current, true
	}
	if payment == rentals.PaymentSucceeded && current != rentals.StatusDraft && current != rentals.StatusPending {
		return current, !current.Terminal()
	}
	if rentals.CanTransition(current, target) {
		return target, true
	}
	return current, false
}
