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

func intentRequest(tenant string) CreateIntentRequest {
	return CreateIntentRequest{
		TenantID: tenant,
		Amount:   decimal.RequireFromString("105.00"),
		Deposit:  decimal.RequireFromString("31.50"),
		Currency: "INR",
		Metadata: map[string]string{"rental_payload": "abc"},
	}
}

func TestMock_CaptureLifecycle(t *testing.T) {
	m := NewMock(time.Minute)
	ctx := context.Background()

	in, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, in.Status)
	assert.NotEmpty(t, in.ClientSecret)

	got, err := m.Get(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, got.Status)
	assert.Equal(t, "abc", got.Metadata["rental_payload"])

	ok, err := m.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.True(t, ok, "capture is idempotent")

	ok, err = m.Cancel(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.False(t, ok, "succeeded intents cannot be canceled")

	got, err = m.Get(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestMock_CrossTenantIsNotFound(t *testing.T) {
	m := NewMock(time.Minute)
	ctx := context.Background()
	in, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)

	_, err = m.Get(ctx, "t2", in.ID)
	assert.ErrorIs(t, err, ErrIntentNotFound)
	_, err = m.Capture(ctx, "t2", in.ID)
	assert.ErrorIs(t, err, ErrIntentNotFound)
	_, err = m.Cancel(ctx, "t2", in.ID)
	assert.ErrorIs(t, err, ErrIntentNotFound)
	_, err = m.Refund(ctx, "t2", in.ID, nil, "")
	assert.ErrorIs(t, err, ErrIntentNotFound)

	got, err := m.Get(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, got.Status, "foreign calls changed nothing")
}

func TestMock_Expiry(t *testing.T) {
	m := NewMock(time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	in, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)

	now = now.Add(time.Minute)
	ok, err := m.Capture(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.Get(ctx, "t1", in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
}

func TestMock_CancelAndRefund(t *testing.T) {
	m := NewMock(time.Minute)
	ctx := context.Background()

	a, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	ok, err := m.Cancel(ctx, "t1", a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Refund(ctx, "t1", a.ID, nil, "")
	require.NoError(t, err)
	assert.False(t, ok, "nothing captured")

	b, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)
	_, err = m.Capture(ctx, "t1", b.ID)
	require.NoError(t, err)

	part := decimal.RequireFromString("5.00")
	ok, err = m.Refund(ctx, "t1", b.ID, &part, "damaged")
	require.NoError(t, err)
	assert.True(t, ok)

	tooMuch := decimal.RequireFromString("200")
	_, err = m.Refund(ctx, "t1", b.ID, &tooMuch, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	ok, err = m.Refund(ctx, "t1", b.ID, nil, "")
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := m.Get(ctx, "t1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
}

func TestMock_InvalidAmount(t *testing.T) {
	m := NewMock(0)
	req := intentRequest("t1")
	req.Amount = decimal.Zero
	_, err := m.CreateIntent(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMock_InstancesAreIsolated(t *testing.T) {
	a, b := NewMock(time.Minute), NewMock(time.Minute)
	in, err := a.CreateIntent(context.Background(), intentRequest("t1"))
	require.NoError(t, err)
	_, err = b.Get(context.Background(), "t1", in.ID)
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestMock_ConcurrentCapture(t *testing.T) {
	m := NewMock(time.Minute)
	ctx := context.Background()
	in, err := m.CreateIntent(ctx, intentRequest("t1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Capture(ctx, "t1", in.ID)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
