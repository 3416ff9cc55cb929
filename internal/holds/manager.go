package holds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

const DefaultTTL = 15 * time.Minute

// Catalog is used to reject holds on products the tenant does not own.
type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]rentals.Product, error)
}

type CreateRequest struct {
	TenantID   string
	ProductID  string
	Quantity   int
	Start      time.Time
	End        time.Time
	TTL        time.Duration // zero means the manager default
	CustomerID string
	SessionID  string
}

type Manager struct {
	Store   Store
	Catalog Catalog
	TTL     time.Duration
	Now     func() time.Time
}

func NewManager(store Store, catalog Catalog, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{Store: store, Catalog: catalog, TTL: ttl, Now: func() time.Time { return time.Now().UTC() }}
}

func (m *Manager) CreateHold(ctx context.Context, req CreateRequest) (*Hold, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !req.End.After(req.Start) {
		return nil, ErrInvalidDateRange
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = m.TTL
	}
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}

	if m.Catalog != nil {
		products, err := m.Catalog.ProductsByIDs(ctx, []string{req.ProductID})
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		p, ok := products[req.ProductID]
		if !ok || p.TenantID != req.TenantID {
			return nil, fmt.Errorf("%w: %s", rentals.ErrProductNotFound, req.ProductID)
		}
	}

	now := m.Now()
	h := Hold{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
		CustomerID: req.CustomerID,
		SessionID:  req.SessionID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.Store.Insert(ctx, h); err != nil {
		return nil, fmt.Errorf("insert hold: %w", err)
	}
	return &h, nil
}

// DeleteHold is idempotent: a missing or already expired hold yields false and no error.
func (m *Manager) DeleteHold(ctx context.Context, tenantID, id string) (bool, error) {
	return m.Store.Delete(ctx, tenantID, id, m.Now())
}

func (m *Manager) ActiveHolds(ctx context.Context, tenantID, productID string) ([]Hold, error) {
	return m.Store.Active(ctx, tenantID, productID, m.Now())
}

// HeldQuantity sums live holds on productID overlapping w.
func (m *Manager) HeldQuantity(ctx context.Context, tenantID, productID string, w rentals.Window) (int, error) {
	hs, err := m.ActiveHolds(ctx, tenantID, productID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range hs {
		if w.Overlaps(rentals.Window{Start: h.Start, End: h.End}) {
			n += h.Quantity
		}
	}
	return n, nil
}
