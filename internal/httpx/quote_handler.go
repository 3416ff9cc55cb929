package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
)

type QuoteHandler struct {
	Engine   *pricing.Engine
	Currency string
}

func (h *QuoteHandler) Register(r chi.Router) {
	r.Post("/payments/quote", h.quote)
}

type lineResp struct {
	TenantID  string `json:"tenantId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Periods   int    `json:"periods"`
	Hourly    bool   `json:"hourly,omitempty"`
	Total     string `json:"total"`
}

type breakdownResp struct {
	TenantID string `json:"tenantId"`
	Total    string `json:"total"`
	Deposit  string `json:"deposit"`
}

type QuoteResp struct {
	Total           string          `json:"total"`
	Deposit         string          `json:"deposit"`
	Currency        string          `json:"currency"`
	BillablePeriods int             `json:"billablePeriods"`
	Lines           []lineResp      `json:"lines"`
	Breakdowns      []breakdownResp `json:"breakdowns"`
}

func toQuoteResp(q *pricing.Quote, currency string) QuoteResp {
	out := QuoteResp{
		Total:           q.Total.StringFixed(2),
		Deposit:         q.Deposit.StringFixed(2),
		Currency:        currency,
		BillablePeriods: q.BillablePeriods,
		Lines:           make([]lineResp, 0, len(q.Lines)),
		Breakdowns:      make([]breakdownResp, 0, len(q.Breakdowns)),
	}
	for _, l := range q.Lines {
		out.Lines = append(out.Lines, lineResp{
			TenantID:  l.TenantID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Periods:   l.Periods,
			Hourly:    l.Hourly,
			Total:     l.Total.StringFixed(2),
		})
	}
	for _, b := range q.Breakdowns {
		out.Breakdowns = append(out.Breakdowns, breakdownResp{
			TenantID: b.TenantID,
			Total:    b.Total.StringFixed(2),
			Deposit:  b.Deposit.StringFixed(2),
		})
	}
	return out
}

// quote is not tenant-scoped: a cart may span several owners.
func (h *QuoteHandler) quote(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q, err := h.Engine.Compute(ctx, pricing.Request{
		Start:  req.DateRange.Start,
		End:    req.DateRange.End,
		Lines:  req.lines(),
		Hourly: req.Hourly,
		Hours:  req.Hours,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResp(q, h.Currency))
}
