package rentals

import "context"

// Store is the persistence contract shared by the booking and reconciliation flows.
// Repo is the Postgres implementation; rentalstest.Store is an in-memory one.
type Store interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	// CommittedQuantity sums the quantities of non-cancelled rentals overlapping w.
	CommittedQuantity(ctx context.Context, productID string, w Window) (int, error)

	GetRental(ctx context.Context, tenantID, id string) (*Rental, error)
	FindRentalByKey(ctx context.Context, tenantID, key string) (*Rental, error)
	FindRentalsByPaymentRef(ctx context.Context, ref string) ([]*Rental, error)
	FindRentalsByKeyPrefix(ctx context.Context, prefix string) ([]*Rental, error)

	// CreateRental inserts r and its items after re-checking capacity in the same
	// transaction. If (tenant, idempotency key) already exists, it returns the existing
	// rental and existed=true without writing anything.
	CreateRental(ctx context.Context, r *Rental) (created *Rental, existed bool, err error)

	// UpdateStatus moves a rental from one status to another and records the payment
	// status. It reports false when the rental was no longer in status from.
	UpdateStatus(ctx context.Context, tenantID, id string, from, to Status, payment PaymentStatus) (bool, error)
	SetContractURL(ctx context.Context, tenantID, id, url string) error

	ResolveCustomer(ctx context.Context, tenantID string, snap CustomerSnapshot) (*Customer, error)
	GetCustomer(ctx context.Context, tenantID, id string) (*Customer, error)
}
