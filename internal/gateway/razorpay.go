package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/logger"
)

// IntentIndex maps local intent ids to Razorpay order ids and owning tenants.
// It lives in Postgres so the adapter holds no shared mutable state.
type IntentIndex interface {
	Put(ctx context.Context, in Intent) error
	Get(ctx context.Context, id string) (*Intent, error)
	SetStatus(ctx context.Context, id string, s Status) error
}

// razorpayAPI is the subset of the razorpay-go client the adapter drives.
type razorpayAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchOrder(orderID string) (map[string]interface{}, error)
	OrderPayments(orderID string) (map[string]interface{}, error)
	CapturePayment(paymentID string, amount int, currency string) (map[string]interface{}, error)
	RefundPayment(paymentID string, amount int, notes map[string]interface{}) (map[string]interface{}, error)
}

type razorpayClient struct{ c *razorpay.Client }

func (r razorpayClient) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return r.c.Order.Create(data, nil)
}

func (r razorpayClient) FetchOrder(orderID string) (map[string]interface{}, error) {
	return r.c.Order.Fetch(orderID, nil, nil)
}

func (r razorpayClient) OrderPayments(orderID string) (map[string]interface{}, error) {
	return r.c.Order.Payments(orderID, nil, nil)
}

func (r razorpayClient) CapturePayment(paymentID string, amount int, currency string) (map[string]interface{}, error) {
	return r.c.Payment.Capture(paymentID, amount, map[string]interface{}{"currency": currency}, nil)
}

func (r razorpayClient) RefundPayment(paymentID string, amount int, notes map[string]interface{}) (map[string]interface{}, error) {
	return r.c.Payment.Refund(paymentID, amount, map[string]interface{}{"notes": notes}, nil)
}

// intentNamespace seeds the UUIDv5 derivation of local ids from Razorpay order ids.
var intentNamespace = uuid.MustParse("6c1f3a52-8d0e-4b7a-9f2e-1a4c5d6e7f80")

// LocalID is the stable local identifier for a Razorpay order id.
func LocalID(orderID string) string {
	return uuid.NewSHA1(intentNamespace, []byte(orderID)).String()
}

type Razorpay struct {
	api   razorpayAPI
	Index IntentIndex
	TTL   time.Duration
	Now   func() time.Time
}

var _ Gateway = (*Razorpay)(nil)

func NewRazorpay(keyID, keySecret string, index IntentIndex, ttl time.Duration) *Razorpay {
	return newRazorpay(razorpayClient{c: razorpay.NewClient(keyID, keySecret)}, index, ttl)
}

func newRazorpay(api razorpayAPI, index IntentIndex, ttl time.Duration) *Razorpay {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Razorpay{api: api, Index: index, TTL: ttl, Now: func() time.Time { return time.Now().UTC() }}
}

// paise converts a major-unit amount to the integer minor units Razorpay expects.
func paise(d decimal.Decimal) int {
	return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

func (g *Razorpay) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	notes := make(map[string]interface{}, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		notes[k] = v
	}
	notes["tenant_id"] = req.TenantID

	order, err := g.api.CreateOrder(map[string]interface{}{
		"amount":   paise(req.Amount),
		"currency": req.Currency,
		"receipt":  fmt.Sprintf("rcpt_%d", g.Now().UnixNano()),
		"notes":    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create razorpay order: %w", err)
	}
	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("create razorpay order: response without id")
	}

	in := Intent{
		ID:          LocalID(orderID),
		TenantID:    req.TenantID,
		Amount:      req.Amount,
		Deposit:     req.Deposit,
		Currency:    req.Currency,
		Status:      StatusRequiresPaymentMethod,
		ExpiresAt:   g.Now().Add(g.TTL),
		ProviderRef: orderID,
		// Razorpay checkout authenticates with the order id itself.
		ClientSecret: orderID,
		Metadata:     copyMetadata(req.Metadata),
	}
	if err := g.Index.Put(ctx, in); err != nil {
		return nil, fmt.Errorf("index intent: %w", err)
	}
	return &in, nil
}

func (g *Razorpay) lookup(ctx context.Context, tenantID, id string) (*Intent, error) {
	in, err := g.Index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.TenantID != tenantID {
		return nil, ErrIntentNotFound
	}
	return in, nil
}

func (g *Razorpay) Get(ctx context.Context, tenantID, id string) (*Intent, error) {
	in, err := g.lookup(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	order, err := g.api.FetchOrder(in.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("fetch razorpay order: %w", err)
	}
	if notes, ok := order["notes"].(map[string]interface{}); ok {
		in.Metadata = make(map[string]string, len(notes))
		for k, v := range notes {
			if s, ok := v.(string); ok {
				in.Metadata[k] = s
			}
		}
	}
	if status, _ := order["status"].(string); status == "paid" && in.Status == StatusRequiresPaymentMethod {
		in.Status = StatusSucceeded
	}
	in.ClientSecret = in.ProviderRef
	return in, nil
}

// payment returns the first payment on the order in one of the wanted states.
func (g *Razorpay) payment(orderID string, want ...string) (string, string, error) {
	res, err := g.api.OrderPayments(orderID)
	if err != nil {
		return "", "", fmt.Errorf("list razorpay payments: %w", err)
	}
	items, _ := res["items"].([]interface{})
	for _, it := range items {
		p, _ := it.(map[string]interface{})
		id, _ := p["id"].(string)
		status, _ := p["status"].(string)
		for _, w := range want {
			if status == w {
				return id, status, nil
			}
		}
	}
	return "", "", nil
}

func (g *Razorpay) Capture(ctx context.Context, tenantID, id string) (bool, error) {
	in, err := g.lookup(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	switch in.Status {
	case StatusSucceeded:
		return true, nil
	case StatusCanceled, StatusRefunded:
		return false, nil
	}

	paymentID, status, err := g.payment(in.ProviderRef, "authorized", "captured")
	if err != nil {
		return false, err
	}
	if paymentID == "" {
		return false, nil
	}
	if status == "authorized" {
		if _, err := g.api.CapturePayment(paymentID, paise(in.Amount), in.Currency); err != nil {
			return false, fmt.Errorf("capture razorpay payment: %w", err)
		}
	}
	if err := g.Index.SetStatus(ctx, id, StatusSucceeded); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel only flips the local state. Razorpay has no order cancel call; an unpaid order
// simply lapses.
func (g *Razorpay) Cancel(ctx context.Context, tenantID, id string) (bool, error) {
	in, err := g.lookup(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	if in.Status != StatusRequiresPaymentMethod {
		return false, nil
	}
	if err := g.Index.SetStatus(ctx, id, StatusCanceled); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Razorpay) Refund(ctx context.Context, tenantID, id string, amount *decimal.Decimal, reason string) (bool, error) {
	in, err := g.lookup(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	if in.Status != StatusSucceeded {
		return false, nil
	}
	want := in.Amount
	if amount != nil {
		want = *amount
	}
	if !want.IsPositive() || want.GreaterThan(in.Amount) {
		return false, ErrInvalidAmount
	}

	paymentID, _, err := g.payment(in.ProviderRef, "captured")
	if err != nil {
		return false, err
	}
	if paymentID == "" {
		return false, nil
	}
	if _, err := g.api.RefundPayment(paymentID, paise(want), map[string]interface{}{"reason": reason}); err != nil {
		return false, fmt.Errorf("refund razorpay payment: %w", err)
	}
	if want.Equal(in.Amount) {
		if err := g.Index.SetStatus(ctx, id, StatusRefunded); err != nil {
			logger.ErrorContext(ctx, "refund recorded at razorpay but not locally", "intent_id", id, "error", err)
			return true, nil
		}
	}
	return true, nil
}
