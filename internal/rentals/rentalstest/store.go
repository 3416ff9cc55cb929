// Package rentalstest provides an in-memory rentals.Store that enforces the same
// (tenant, idempotency key) uniqueness and overlap-capacity rules as the Postgres repo.
package rentalstest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

type Store struct {
	mu        sync.Mutex
	products  map[string]rentals.Product
	rentals   map[string]*rentals.Rental
	customers map[string]*rentals.Customer

	// Inserts counts successful rental inserts.
	Inserts int
	// CreateDelay widens the window between the capacity check and the insert so
	// tests can exercise concurrent callers.
	CreateDelay time.Duration
}

var _ rentals.Store = (*Store)(nil)

func New(products ...rentals.Product) *Store {
	s := &Store{
		products:  map[string]rentals.Product{},
		rentals:   map[string]*rentals.Rental{},
		customers: map[string]*rentals.Customer{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) PutProduct(p rentals.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutCustomer(c rentals.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.customers[c.ID] = &cp
}

// Rentals returns copies of all stored rentals ordered by tenant then id.
func (s *Store) Rentals() []*rentals.Rental {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*rentals.Rental, 0, len(s.rentals))
	for _, r := range s.rentals {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Customers() []*rentals.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*rentals.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (s *Store) ProductsByIDs(_ context.Context, ids []string) (map[string]rentals.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]rentals.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) CommittedQuantity(_ context.Context, productID string, w rentals.Window) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed(productID, w), nil
}

func (s *Store) committed(productID string, w rentals.Window) int {
	n := 0
	for _, r := range s.rentals {
		if r.Status == rentals.StatusCancelled || !w.Overlaps(rentals.Window{Start: r.Start, End: r.End}) {
			continue
		}
		for _, it := range r.Items {
			if it.ProductID == productID {
				n += it.Quantity
			}
		}
	}
	return n
}

func (s *Store) GetRental(_ context.Context, tenantID, id string) (*rentals.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rentals[id]
	if !ok || r.TenantID != tenantID {
		return nil, rentals.ErrRentalNotFound
	}
	return clone(r), nil
}

func (s *Store) FindRentalByKey(_ context.Context, tenantID, key string) (*rentals.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.byKey(tenantID, key); r != nil {
		return clone(r), nil
	}
	return nil, rentals.ErrRentalNotFound
}

func (s *Store) byKey(tenantID, key string) *rentals.Rental {
	if key == "" {
		return nil
	}
	for _, r := range s.rentals {
		if r.TenantID == tenantID && r.IdempotencyKey == key {
			return r
		}
	}
	return nil
}

func (s *Store) FindRentalsByPaymentRef(_ context.Context, ref string) ([]*rentals.Rental, error) {
	return s.filter(func(r *rentals.Rental) bool { return ref != "" && r.PaymentRef == ref }), nil
}

func (s *Store) FindRentalsByKeyPrefix(_ context.Context, prefix string) ([]*rentals.Rental, error) {
	return s.filter(func(r *rentals.Rental) bool {
		return prefix != "" && (r.IdempotencyKey == prefix || strings.HasPrefix(r.IdempotencyKey, prefix+":"))
	}), nil
}

func (s *Store) filter(keep func(*rentals.Rental) bool) []*rentals.Rental {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rentals.Rental
	for _, r := range s.rentals {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

func (s *Store) CreateRental(_ context.Context, in *rentals.Rental) (*rentals.Rental, bool, error) {
	if s.CreateDelay > 0 {
		time.Sleep(s.CreateDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.byKey(in.TenantID, in.IdempotencyKey); existing != nil {
		return clone(existing), true, nil
	}

	requested := map[string]int{}
	for _, it := range in.Items {
		requested[it.ProductID] += it.Quantity
	}
	w := rentals.Window{Start: in.Start, End: in.End}
	for id, qty := range requested {
		p, ok := s.products[id]
		if !ok || p.TenantID != in.TenantID {
			return nil, false, fmt.Errorf("%w: %s", rentals.ErrProductNotFound, id)
		}
		if committed := s.committed(id, w); committed+qty > p.AvailableQuantity {
			return nil, false, fmt.Errorf("%w: product %s requested %d, available %d",
				rentals.ErrInsufficientAvailability, id, qty, p.AvailableQuantity-committed)
		}
	}

	out := clone(in)
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now
	s.rentals[out.ID] = out
	s.Inserts++
	return clone(out), false, nil
}

func (s *Store) UpdateStatus(_ context.Context, tenantID, id string, from, to rentals.Status, payment rentals.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rentals[id]
	if !ok || r.TenantID != tenantID || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.PaymentStatus = payment
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) SetContractURL(_ context.Context, tenantID, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rentals[id]
	if !ok || r.TenantID != tenantID {
		return rentals.ErrRentalNotFound
	}
	r.ContractURL = url
	return nil
}

func (s *Store) ResolveCustomer(_ context.Context, tenantID string, snap rentals.CustomerSnapshot) (*rentals.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := rentals.NormalizeEmail(snap.Email)
	if email != "" {
		for _, c := range s.customers {
			if c.TenantID == tenantID && rentals.NormalizeEmail(c.Email) == email {
				cp := *c
				return &cp, nil
			}
		}
	}
	if c, ok := s.customers[snap.CustomerID]; ok && c.TenantID == tenantID {
		cp := *c
		return &cp, nil
	}
	c := &rentals.Customer{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		Name:      snap.Name,
		Phone:     snap.Phone,
		CreatedAt: time.Now().UTC(),
	}
	s.customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) GetCustomer(_ context.Context, tenantID, id string) (*rentals.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, rentals.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func clone(r *rentals.Rental) *rentals.Rental {
	cp := *r
	cp.Items = append([]rentals.RentalItem(nil), r.Items...)
	return &cp
}
