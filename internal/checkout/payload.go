// Package checkout packs a reservation's full intent into the payment processor's flat,
// size-bounded metadata channel and creates the checkout session that carries it.
package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

const PayloadVersion = 1

// Payload is the reservation intent carried through the processor. Field names are
// short because every byte counts against the metadata limit.
type Payload struct {
	Version  int                      `json:"v"`
	Key      string                   `json:"k"`
	Customer rentals.CustomerSnapshot `json:"c"`
	Start    time.Time                `json:"s"`
	End      time.Time                `json:"e"`
	Hourly   bool                     `json:"h,omitempty"`
	Hours    int                      `json:"hr,omitempty"`
	Currency string                   `json:"cu"`
	Total    decimal.Decimal          `json:"t"`
	Deposit  decimal.Decimal          `json:"d"`
	Tenants  []TenantBreakdown        `json:"b"`
}

type TenantBreakdown struct {
	TenantID string          `json:"id"`
	Total    decimal.Decimal `json:"t"`
	Deposit  decimal.Decimal `json:"d"`
	Items    []PayloadItem   `json:"i"`
}

type PayloadItem struct {
	ProductID string          `json:"p"`
	Quantity  int             `json:"q"`
	UnitPrice decimal.Decimal `json:"u"`
	Subtotal  decimal.Decimal `json:"st"`
}

// NewPayload snapshots a computed quote. The quote's breakdowns are already in tenant
// order with the deposit remainder absorbed by the last tenant.
func NewPayload(key string, customer rentals.CustomerSnapshot, req pricing.Request, currency string, q *pricing.Quote) *Payload {
	p := &Payload{
		Version:  PayloadVersion,
		Key:      key,
		Customer: customer,
		Start:    req.Start.UTC(),
		End:      req.End.UTC(),
		Hourly:   req.Hourly,
		Hours:    req.Hours,
		Currency: currency,
		Total:    q.Total,
		Deposit:  q.Deposit,
		Tenants:  make([]TenantBreakdown, 0, len(q.Breakdowns)),
	}
	for _, b := range q.Breakdowns {
		tb := TenantBreakdown{TenantID: b.TenantID, Total: b.Total, Deposit: b.Deposit}
		for _, l := range b.Lines {
			tb.Items = append(tb.Items, PayloadItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
				Subtotal:  l.Total,
			})
		}
		p.Tenants = append(p.Tenants, tb)
	}
	return p
}

// TenantKey is the idempotency key of the rental materialized for one breakdown.
func (p *Payload) TenantKey(tenantID string) string { return p.Key + ":" + tenantID }

// Request rebuilds the pricing request for one tenant's lines so they can be re-priced
// against live data.
func (p *Payload) Request(b TenantBreakdown) pricing.Request {
	req := pricing.Request{
		Start:    p.Start,
		End:      p.End,
		Hourly:   p.Hourly,
		Hours:    p.Hours,
		Strict:   true,
		TenantID: b.TenantID,
	}
	for _, it := range b.Items {
		req.Lines = append(req.Lines, pricing.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return req
}

func (p *Payload) Totals() []decimal.Decimal {
	out := make([]decimal.Decimal, len(p.Tenants))
	for i, b := range p.Tenants {
		out[i] = b.Total
	}
	return out
}
