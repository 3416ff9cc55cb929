package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-rental-settlement/internal/booking"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

type RentalsHandler struct {
	Service *booking.Service
}

func (h *RentalsHandler) Register(r chi.Router) {
	r.Post("/rentals", h.create)
	r.Get("/rentals/{id}", h.get)
	r.Delete("/rentals/{id}", h.cancel)
}

type createRentalReq struct {
	cartReq
	CustomerID      string `json:"customerId"`
	PaymentIntentID string `json:"paymentIntentId"`
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type rentalItemResp struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Periods   int    `json:"periods"`
	Subtotal  string `json:"subtotal"`
}

type RentalResp struct {
	ID             string                `json:"id"`
	TenantID       string                `json:"tenantId"`
	CustomerID     string                `json:"customerId"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	Status         rentals.Status        `json:"status"`
	PaymentStatus  rentals.PaymentStatus `json:"paymentStatus"`
	PaymentRef     string                `json:"paymentRef,omitempty"`
	Total          string                `json:"total"`
	Deposit        string                `json:"deposit"`
	Currency       string                `json:"currency"`
	IdempotencyKey string                `json:"idempotencyKey"`
	ContractURL    string                `json:"contractUrl,omitempty"`
	Items          []rentalItemResp      `json:"items"`
}

func toRentalResp(r *rentals.Rental) RentalResp {
	out := RentalResp{
		ID:             r.ID,
		TenantID:       r.TenantID,
		CustomerID:     r.CustomerID,
		Start:          r.Start,
		End:            r.End,
		Status:         r.Status,
		PaymentStatus:  r.PaymentStatus,
		PaymentRef:     r.PaymentRef,
		Total:          r.TotalAmount.StringFixed(2),
		Deposit:        r.DepositAmount.StringFixed(2),
		Currency:       r.Currency,
		IdempotencyKey: r.IdempotencyKey,
		ContractURL:    r.ContractURL,
		Items:          make([]rentalItemResp, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		out.Items = append(out.Items, rentalItemResp{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Periods:   it.Periods,
			Subtotal:  it.Subtotal.StringFixed(2),
		})
	}
	return out
}

func (h *RentalsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req createRentalReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rental, created, err := h.Service.Create(ctx, booking.CreateRequest{
		TenantID:        tenantID,
		CustomerID:      req.CustomerID,
		Start:           req.DateRange.Start,
		End:             req.DateRange.End,
		Lines:           req.lines(),
		Hourly:          req.Hourly,
		Hours:           req.Hours,
		PaymentIntentID: req.PaymentIntentID,
		IdempotencyKey:  req.IdempotencyKey,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toRentalResp(rental))
}

func (h *RentalsHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rental, err := h.Service.Get(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRentalResp(rental))
}

func (h *RentalsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Cancel(ctx, tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
