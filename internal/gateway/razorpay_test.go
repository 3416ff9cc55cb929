package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIndex struct {
	mu      sync.Mutex
	intents map[string]Intent
}

func (x *memIndex) Put(_ context.Context, in Intent) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.intents == nil {
		x.intents = map[string]Intent{}
	}
	x.intents[in.ID] = in
	return nil
}

func (x *memIndex) Get(_ context.Context, id string) (*Intent, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	in, ok := x.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &in, nil
}

func (x *memIndex) SetStatus(_ context.Context, id string, s Status) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	in, ok := x.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = s
	x.intents[id] = in
	return nil
}

type fakeRazorpay struct {
	orders   map[string]map[string]interface{}
	payments map[string][]interface{}
	captured []int
	refunded []int
}

func newFakeRazorpay() *fakeRazorpay {
	return &fakeRazorpay{orders: map[string]map[string]interface{}{}, payments: map[string][]interface{}{}}
}

func (f *fakeRazorpay) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	id := "order_" + string(rune('A'+len(f.orders)))
	order := map[string]interface{}{"id": id, "status": "created", "amount": data["amount"], "notes": data["notes"]}
	f.orders[id] = order
	return order, nil
}

func (f *fakeRazorpay) FetchOrder(orderID string) (map[string]interface{}, error) {
	return f.orders[orderID], nil
}

func (f *fakeRazorpay) OrderPayments(orderID string) (map[string]interface{}, error) {
	return map[string]interface{}{"items": f.payments[orderID]}, nil
}

func (f *fakeRazorpay) CapturePayment(_ string, amount int, _ string) (map[string]interface{}, error) {
	f.captured = append(f.captured, amount)
	return map[string]interface{}{"status": "captured"}, nil
}

func (f *fakeRazorpay) RefundPayment(_ string, amount int, _ map[string]interface{}) (map[string]interface{}, error) {
	f.refunded = append(f.refunded, amount)
	return map[string]interface{}{"status": "processed"}, nil
}

func TestLocalID_Deterministic(t *testing.T) {
	assert.Equal(t, LocalID("order_X"), LocalID("order_X"))
	assert.NotEqual(t, LocalID("order_X"), LocalID("order_Y"))
}

func TestRazorpay_CreateGetCapture(t *testing.T) {
	api := newFakeRazorpay()
	g := newRazorpay(api, &memIndex{}, time.Minute)
	ctx := context.Background()

	in, err := g.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	assert.Equal(t, LocalID(in.ProviderRef), in.ID)
	assert.Equal(t, 10500, api.orders[in.ProviderRef]["amount"])

	got, err := g.Get(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Metadata["rental_payload"])
	assert.Equal(t, "t1", got.Metadata["tenant_id"])

	_, err = g.Get(ctx, "t2", in.ID)
	assert.ErrorIs(t, err, ErrIntentNotFound)

	// no authorized payment yet
	ok, err := g.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	api.payments[in.ProviderRef] = []interface{}{map[string]interface{}{"id": "pay_1", "status": "authorized"}}
	ok, err = g.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{10500}, api.captured)

	ok, err = g.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, api.captured, 1, "second capture does not hit the processor")
}

func TestRazorpay_RefundAndCancel(t *testing.T) {
	api := newFakeRazorpay()
	idx := &memIndex{}
	g := newRazorpay(api, idx, time.Minute)
	ctx := context.Background()

	in, err := g.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	ok, err := g.Cancel(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.Cancel(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	paid, err := g.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	api.payments[paid.ProviderRef] = []interface{}{map[string]interface{}{"id": "pay_2", "status": "captured"}}
	require.NoError(t, idx.SetStatus(ctx, paid.ID, StatusSucceeded))

	half := decimal.RequireFromString("52.50")
	ok, err = g.Refund(ctx, "t1", paid.ID, &half, "partial")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{5250}, api.refunded)

	stored, err := idx.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, stored.Status)

	ok, err = g.Refund(ctx, "t1", paid.ID, nil, "")
	require.NoError(t, err)
	assert.True(t, ok)
	stored, err = idx.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, stored.Status)
}
