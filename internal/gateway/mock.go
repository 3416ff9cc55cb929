package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock is a deterministic in-memory gateway. Each instance owns its map, so tests get
// isolated state. Intents only reach succeeded through Capture.
type Mock struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.RWMutex
	intents map[string]*mockIntent
}

type mockIntent struct {
	mu       sync.Mutex
	intent   Intent
	refunded decimal.Decimal
}

var _ Gateway = (*Mock)(nil)

func NewMock(ttl time.Duration) *Mock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Mock{
		TTL:     ttl,
		Now:     func() time.Time { return time.Now().UTC() },
		intents: map[string]*mockIntent{},
	}
}

func (m *Mock) CreateIntent(_ context.Context, req CreateIntentRequest) (*Intent, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	id := "pi_" + uuid.NewString()
	in := Intent{
		ID:           id,
		TenantID:     req.TenantID,
		Amount:       req.Amount,
		Deposit:      req.Deposit,
		Currency:     req.Currency,
		Status:       StatusRequiresPaymentMethod,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		ExpiresAt:    m.Now().Add(m.TTL),
		Metadata:     copyMetadata(req.Metadata),
	}

	m.mu.Lock()
	m.intents[id] = &mockIntent{intent: in, refunded: decimal.Zero}
	m.mu.Unlock()

	out := in
	out.Metadata = copyMetadata(in.Metadata)
	return &out, nil
}

func (m *Mock) lookup(tenantID, id string) (*mockIntent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mi, ok := m.intents[id]
	if !ok || mi.intent.TenantID != tenantID {
		return nil, false
	}
	return mi, true
}

// expire cancels an unpaid intent past its TTL. Caller holds mi.mu.
func (m *Mock) expire(mi *mockIntent) {
	if mi.intent.Status == StatusRequiresPaymentMethod && !m.Now().Before(mi.intent.ExpiresAt) {
		mi.intent.Status = StatusCanceled
	}
}

func (m *Mock) Get(_ context.Context, tenantID, id string) (*Intent, error) {
	mi, ok := m.lookup(tenantID, id)
	if !ok {
		return nil, ErrIntentNotFound
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	m.expire(mi)
	out := mi.intent
	out.Metadata = copyMetadata(mi.intent.Metadata)
	return &out, nil
}

// Capture is idempotent: capturing a succeeded intent reports true again.
func (m *Mock) Capture(_ context.Context, tenantID, id string) (bool, error) {
	mi, ok := m.lookup(tenantID, id)
	if !ok {
		return false, ErrIntentNotFound
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	m.expire(mi)
	switch mi.intent.Status {
	case StatusRequiresPaymentMethod:
		mi.intent.Status = StatusSucceeded
		return true, nil
	case StatusSucceeded:
		return true, nil
	default:
		return false, nil
	}
}

func (m *Mock) Cancel(_ context.Context, tenantID, id string) (bool, error) {
	mi, ok := m.lookup(tenantID, id)
	if !ok {
		return false, ErrIntentNotFound
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	m.expire(mi)
	if mi.intent.Status != StatusRequiresPaymentMethod {
		return false, nil
	}
	mi.intent.Status = StatusCanceled
	return true, nil
}

// Refund accepts partial refunds until the captured amount is exhausted.
func (m *Mock) Refund(_ context.Context, tenantID, id string, amount *decimal.Decimal, _ string) (bool, error) {
	mi, ok := m.lookup(tenantID, id)
	if !ok {
		return false, ErrIntentNotFound
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.intent.Status != StatusSucceeded {
		return false, nil
	}
	remaining := mi.intent.Amount.Sub(mi.refunded)
	want := remaining
	if amount != nil {
		want = *amount
	}
	if !want.IsPositive() || want.GreaterThan(remaining) {
		return false, ErrInvalidAmount
	}
	mi.refunded = mi.refunded.Add(want)
	if mi.refunded.Equal(mi.intent.Amount) {
		mi.intent.Status = StatusRefunded
	}
	return true, nil
}
