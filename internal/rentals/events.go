package rentals

import (
	"encoding/json"
	"time"
)

const (
	EventRentalConfirmed = "RentalConfirmed"
	EventRentalCancelled = "RentalCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // rental id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Periods   int    `json:"periods"`
	Subtotal  string `json:"subtotal"`
}

// RentalConfirmedPayload carries everything the confirmation pipeline needs so the
// consumer never has to read the rental back before rendering the contract.
type RentalConfirmedPayload struct {
	RentalID      string     `json:"rental_id"`
	TenantID      string     `json:"tenant_id"`
	CustomerID    string     `json:"customer_id"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Total         string     `json:"total"`
	Deposit       string     `json:"deposit"`
	Currency      string     `json:"currency"`
	PaymentRef    string     `json:"payment_ref"`
	Items         []ItemLine `json:"items"`
}

func NewRentalConfirmedPayload(r *Rental, c *Customer) RentalConfirmedPayload {
	p := RentalConfirmedPayload{
		RentalID:   r.ID,
		TenantID:   r.TenantID,
		CustomerID: r.CustomerID,
		Start:      r.Start,
		End:        r.End,
		Total:      r.TotalAmount.StringFixed(2),
		Deposit:    r.DepositAmount.StringFixed(2),
		Currency:   r.Currency,
		PaymentRef: r.PaymentRef,
		Items:      make([]ItemLine, 0, len(r.Items)),
	}
	if c != nil {
		p.CustomerEmail = c.Email
		p.CustomerName = c.Name
	}
	for _, it := range r.Items {
		p.Items = append(p.Items, ItemLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Periods:   it.Periods,
			Subtotal:  it.Subtotal.StringFixed(2),
		})
	}
	return p
}
