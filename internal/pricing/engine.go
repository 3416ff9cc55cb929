// Package pricing computes what a reservation costs: per-line subtotals, the total, the
// 30% deposit and, for checkouts spanning tenants, the per-tenant split.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

var (
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrEmptyLineSet          = errors.New("empty line set")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrProductsUnavailable   = errors.New("products unavailable")
	ErrCrossTenantNotAllowed = errors.New("cross-tenant lines not allowed")
)

// DepositRate is the share of the total collected up front.
var DepositRate = decimal.RequireFromString("0.30")

// Catalog is the read-only product snapshot the engine prices against.
type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]rentals.Product, error)
}

type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Request struct {
	Start  time.Time
	End    time.Time
	Lines  []Line
	Hourly bool
	Hours  int

	// Strict rejects lines owned by more than one tenant, or by any tenant other than
	// TenantID when it is set.
	Strict   bool
	TenantID string
}

type LineQuote struct {
	TenantID  string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Periods   int
	Hourly    bool
	Total     decimal.Decimal
}

type TenantQuote struct {
	TenantID string
	Total    decimal.Decimal
	Deposit  decimal.Decimal
	Lines    []LineQuote
}

type Quote struct {
	Total           decimal.Decimal
	Deposit         decimal.Decimal
	BillablePeriods int
	Lines           []LineQuote
	// LineTotals maps product id to its merged line total.
	LineTotals map[string]decimal.Decimal
	// Breakdowns holds one entry per tenant, ordered by tenant id.
	Breakdowns []TenantQuote
}

func (q *Quote) MultiTenant() bool { return len(q.Breakdowns) > 1 }

// Tenant returns the breakdown for tenantID, or nil.
func (q *Quote) Tenant(tenantID string) *TenantQuote {
	for i := range q.Breakdowns {
		if q.Breakdowns[i].TenantID == tenantID {
			return &q.Breakdowns[i]
		}
	}
	return nil
}

type Engine struct {
	Catalog Catalog
}

func NewEngine(c Catalog) *Engine { return &Engine{Catalog: c} }

// Compute prices req against the catalog. It has no side effects.
func (e *Engine) Compute(ctx context.Context, req Request) (*Quote, error) {
	if !req.End.After(req.Start) {
		return nil, ErrInvalidDateRange
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLineSet
	}

	// merge duplicate product lines, keeping first-seen order for the lookup
	qty := map[string]int{}
	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
		if _, seen := qty[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}

	products, err := e.Catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrProductsUnavailable, strings.Join(missing, ","))
	}

	if req.Strict {
		owner := req.TenantID
		for _, id := range ids {
			t := products[id].TenantID
			if owner == "" {
				owner = t
			}
			if t != owner {
				return nil, fmt.Errorf("%w: product %s belongs to %s", ErrCrossTenantNotAllowed, id, t)
			}
		}
	}

	days := BillableDays(req.Start, req.End)
	q := &Quote{
		Total:      decimal.Zero,
		LineTotals: make(map[string]decimal.Decimal, len(ids)),
	}

	allHourly := true
	for _, id := range ids {
		p := products[id]
		lq := LineQuote{
			TenantID:  p.TenantID,
			ProductID: id,
			Quantity:  qty[id],
			UnitPrice: p.DailyPrice,
			Periods:   days,
		}
		if req.Hourly && req.Hours > 0 && p.HourlyPrice != nil {
			lq.UnitPrice = *p.HourlyPrice
			lq.Periods = req.Hours
			lq.Hourly = true
		} else {
			allHourly = false
		}
		lq.Total = LineTotal(lq.UnitPrice, lq.Quantity, lq.Periods)
		q.Lines = append(q.Lines, lq)
		q.LineTotals[id] = lq.Total
		q.Total = q.Total.Add(lq.Total)
	}
	sort.SliceStable(q.Lines, func(i, j int) bool {
		if q.Lines[i].TenantID != q.Lines[j].TenantID {
			return q.Lines[i].TenantID < q.Lines[j].TenantID
		}
		return q.Lines[i].ProductID < q.Lines[j].ProductID
	})

	q.BillablePeriods = days
	if allHourly {
		q.BillablePeriods = req.Hours
	}
	q.Deposit = Deposit(q.Total)

	for _, lq := range q.Lines {
		n := len(q.Breakdowns)
		if n == 0 || q.Breakdowns[n-1].TenantID != lq.TenantID {
			q.Breakdowns = append(q.Breakdowns, TenantQuote{TenantID: lq.TenantID, Total: decimal.Zero})
			n++
		}
		b := &q.Breakdowns[n-1]
		b.Lines = append(b.Lines, lq)
		b.Total = b.Total.Add(lq.Total)
	}

	totals := make([]decimal.Decimal, len(q.Breakdowns))
	for i, b := range q.Breakdowns {
		totals[i] = b.Total
	}
	for i, d := range SplitDeposit(q.Deposit, totals) {
		q.Breakdowns[i].Deposit = d
	}
	return q, nil
}

// BillableDays is max(1, ceil((end-start) / 24h)).
func BillableDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

func LineTotal(unit decimal.Decimal, quantity, periods int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Mul(decimal.NewFromInt(int64(periods)))
}

// Deposit rounds total × DepositRate to cents, half away from zero.
func Deposit(total decimal.Decimal) decimal.Decimal {
	return total.Mul(DepositRate).Round(2)
}

// SplitDeposit allocates deposit across totals proportionally. Every part but the last is
// rounded to cents; the last absorbs the exact remainder so the parts always sum to
// deposit. totals must already be in the deterministic tenant order.
func SplitDeposit(deposit decimal.Decimal, totals []decimal.Decimal) []decimal.Decimal {
	parts := make([]decimal.Decimal, len(totals))
	if len(totals) == 0 {
		return parts
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	allocated := decimal.Zero
	for i := 0; i < len(totals)-1; i++ {
		share := decimal.Zero
		if !sum.IsZero() {
			share = deposit.Mul(totals[i]).Div(sum).Round(2)
		}
		parts[i] = share
		allocated = allocated.Add(share)
	}
	parts[len(totals)-1] = deposit.Sub(allocated)
	return parts
}
