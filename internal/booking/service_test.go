package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/redisx"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals/rentalstest"
)

var (
	start = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	end   = time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
)

type countingHandoff struct {
	mu sync.Mutex
	n  int
}

func (h *countingHandoff) Handoff(context.Context, *rentals.Rental, *rentals.Customer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	return nil
}

func newService(t *testing.T) (*Service, *rentalstest.Store, *gateway.Mock) {
	t.Helper()
	store := rentalstest.New(
		rentals.Product{ID: "A", TenantID: "t1", DailyPrice: decimal.NewFromInt(10), AvailableQuantity: 5},
		rentals.Product{ID: "B", TenantID: "t1", DailyPrice: decimal.NewFromInt(15), AvailableQuantity: 5},
		rentals.Product{ID: "L", TenantID: "t1", DailyPrice: decimal.NewFromInt(50), AvailableQuantity: 1},
		rentals.Product{ID: "X", TenantID: "t2", DailyPrice: decimal.NewFromInt(5), AvailableQuantity: 5},
	)
	store.PutCustomer(rentals.Customer{ID: "c1", TenantID: "t1", Email: "ana@example.com"})
	gw := gateway.NewMock(time.Hour)
	svc := NewService(store, gw, "INR")
	svc.Backoff = time.Millisecond
	return svc, store, gw
}

func intent(t *testing.T, gw *gateway.Mock, amount string) string {
	t.Helper()
	total := decimal.RequireFromString(amount)
	in, err := gw.CreateIntent(context.Background(), gateway.CreateIntentRequest{
		TenantID: "t1", Amount: total, Deposit: pricing.Deposit(total), Currency: "INR",
	})
	require.NoError(t, err)
	return in.ID
}

func workedExample(intentID string) CreateRequest {
	return CreateRequest{
		TenantID:        "t1",
		CustomerID:      "c1",
		Start:           start,
		End:             end,
		Lines:           []pricing.Line{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}},
		PaymentIntentID: intentID,
		IdempotencyKey:  "key-1",
	}
}

func TestCreate_ConfirmsAndCaptures(t *testing.T) {
	svc, _, gw := newService(t)
	h := &countingHandoff{}
	svc.Handoff = h
	id := intent(t, gw, "105")

	r, created, err := svc.Create(context.Background(), workedExample(id))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, rentals.StatusConfirmed, r.Status)
	assert.Equal(t, rentals.PaymentSucceeded, r.PaymentStatus)
	assert.Equal(t, "105.00", r.TotalAmount.StringFixed(2))
	assert.Equal(t, "31.50", r.DepositAmount.StringFixed(2))
	require.Len(t, r.Items, 2)

	in, err := gw.Get(context.Background(), "t1", id)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSucceeded, in.Status)
	assert.Equal(t, 1, h.n)
}

func TestCreate_SameKeyReturnsSameRental(t *testing.T) {
	svc, store, gw := newService(t)
	req := workedExample(intent(t, gw, "105"))

	first, created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Inserts)
}

func TestCreate_SameKeyDifferentInputs(t *testing.T) {
	svc, store, gw := newService(t)
	req := workedExample(intent(t, gw, "105"))
	_, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	req.Lines = []pricing.Line{{ProductID: "A", Quantity: 1}}
	_, _, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, 1, store.Inserts)
}

func TestCreate_UsesRedisFastPath(t *testing.T) {
	svc, store, gw := newService(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc.Cache = redisx.NewIdempotencyCache(rdb)

	req := workedExample(intent(t, gw, "105"))
	first, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, mr.Exists("idem:rental:t1:key-1"))

	second, created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Inserts)
}

func TestCreate_RedisDownFallsThroughToStore(t *testing.T) {
	svc, store, gw := newService(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc.Cache = redisx.NewIdempotencyCache(rdb)

	req := workedExample(intent(t, gw, "105"))
	first, _, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	mr.Close()

	second, created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.Inserts)
}

func TestCreate_AmountMismatch(t *testing.T) {
	svc, store, gw := newService(t)
	_, _, err := svc.Create(context.Background(), workedExample(intent(t, gw, "100")))
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Zero(t, store.Inserts)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, gw := newService(t)
	id := intent(t, gw, "105")
	ctx := context.Background()

	req := workedExample(id)
	req.CustomerID = ""
	_, _, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrCustomerRequired)

	req = workedExample("")
	_, _, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrPaymentIntentRequired)

	req = workedExample(id)
	req.CustomerID = "nobody"
	_, _, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, rentals.ErrCustomerNotFound)

	req = workedExample(id)
	req.Lines = append(req.Lines, pricing.Line{ProductID: "X", Quantity: 1})
	_, _, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, pricing.ErrCrossTenantNotAllowed)

	req = workedExample(id)
	req.End = req.Start
	_, _, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, pricing.ErrInvalidDateRange)

	_, _, err = svc.Create(ctx, workedExample("pi_missing"))
	assert.ErrorIs(t, err, gateway.ErrIntentNotFound)
}

func TestCreate_CanceledIntent(t *testing.T) {
	svc, store, gw := newService(t)
	id := intent(t, gw, "105")
	_, err := gw.Cancel(context.Background(), "t1", id)
	require.NoError(t, err)

	_, _, err = svc.Create(context.Background(), workedExample(id))
	assert.ErrorIs(t, err, ErrIntentNotPayable)
	assert.Zero(t, store.Inserts)
}

func TestCreate_LastUnitRace(t *testing.T) {
	svc, store, gw := newService(t)
	store.CreateDelay = 5 * time.Millisecond

	reqs := make([]CreateRequest, 2)
	for i := range reqs {
		reqs[i] = CreateRequest{
			TenantID: "t1", CustomerID: "c1", Start: start, End: end,
			Lines:           []pricing.Line{{ProductID: "L", Quantity: 1}},
			PaymentIntentID: intent(t, gw, "150"),
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reqs))
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Create(context.Background(), reqs[i])
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, rentals.ErrInsufficientAvailability)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, store.Inserts)
}

type failingCapture struct {
	*gateway.Mock
	calls int
}

func (f *failingCapture) Capture(context.Context, string, string) (bool, error) {
	f.calls++
	return false, errors.New("processor timeout")
}

func TestCreate_CaptureFailureLeavesPending(t *testing.T) {
	svc, _, gw := newService(t)
	fc := &failingCapture{Mock: gw}
	svc.Gateway = fc

	r, created, err := svc.Create(context.Background(), workedExample(intent(t, gw, "105")))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, rentals.StatusPending, r.Status)
	assert.Equal(t, 3, fc.calls)
}

func TestCancel(t *testing.T) {
	svc, store, gw := newService(t)
	ctx := context.Background()
	r, _, err := svc.Create(ctx, workedExample(intent(t, gw, "105")))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, "t1", r.ID))
	got, err := svc.Get(ctx, "t1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, rentals.StatusCancelled, got.Status)

	require.NoError(t, svc.Cancel(ctx, "t1", r.ID), "cancel is repeatable")
	assert.ErrorIs(t, svc.Cancel(ctx, "t2", r.ID), rentals.ErrRentalNotFound)
	assert.ErrorIs(t, svc.Cancel(ctx, "t1", "missing"), rentals.ErrRentalNotFound)

	// completed rentals are past cancelling
	done, _, err := store.CreateRental(ctx, &rentals.Rental{
		TenantID: "t1", CustomerID: "c1", Start: start, End: end, Status: rentals.StatusCompleted,
		IdempotencyKey: "done", Items: []rentals.RentalItem{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Cancel(ctx, "t1", done.ID), rentals.ErrInvalidTransition)
}

func TestCancelReleasesPendingIntent(t *testing.T) {
	svc, store, gw := newService(t)
	ctx := context.Background()
	id := intent(t, gw, "30")
	r, _, err := store.CreateRental(ctx, &rentals.Rental{
		TenantID: "t1", CustomerID: "c1", Start: start, End: end,
		Status: rentals.StatusPending, PaymentStatus: rentals.PaymentPending, PaymentRef: id,
		IdempotencyKey: "p1", Items: []rentals.RentalItem{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, "t1", r.ID))
	in, err := gw.Get(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusCanceled, in.Status)

	got, err := store.GetRental(ctx, "t1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, rentals.PaymentCanceled, got.PaymentStatus)
}
