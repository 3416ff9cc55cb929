package rentals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a tenant-scoped inventory unit. Prices are per day and, optionally, per hour.
type Product struct {
	ID                string
	TenantID          string
	Name              string
	DailyPrice        decimal.Decimal
	HourlyPrice       *decimal.Decimal
	AvailableQuantity int
}

type Customer struct {
	ID        string
	TenantID  string
	Email     string
	Name      string
	Phone     string
	CreatedAt time.Time
}

// CustomerSnapshot is a denormalized copy of the customer taken at checkout time.
// The live record may not exist yet.
type CustomerSnapshot struct {
	CustomerID string `json:"id,omitempty"`
	Email      string `json:"em,omitempty"`
	Name       string `json:"n,omitempty"`
	Phone      string `json:"p,omitempty"`
}

type Rental struct {
	ID             string
	TenantID       string
	CustomerID     string
	Start          time.Time
	End            time.Time
	Status         Status
	TotalAmount    decimal.Decimal
	DepositAmount  decimal.Decimal
	Currency       string
	PaymentRef     string
	PaymentStatus  PaymentStatus
	IdempotencyKey string
	ContractURL    string
	Notes          string
	Items          []RentalItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RentalItem snapshots the unit price at creation; later product price changes never
// touch Subtotal.
type RentalItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Periods   int
	Subtotal  decimal.Decimal
}

// Window is the half-open booking interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
