package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-rental-settlement/internal/checkout"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

type CheckoutHandler struct {
	Service *checkout.Service
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout/create-session", h.createSession)
}

type createSessionReq struct {
	cartReq
	CustomerID    string `json:"customerId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
}

type sessionResp struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Total     string    `json:"total"`
	Deposit   string    `json:"deposit"`
}

func (h *CheckoutHandler) createSession(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req createSessionReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Service.CreateSession(ctx, checkout.SessionRequest{
		TenantID: tenantID,
		Start:    req.DateRange.Start,
		End:      req.DateRange.End,
		Lines:    req.lines(),
		Hourly:   req.Hourly,
		Hours:    req.Hours,
		Customer: rentals.CustomerSnapshot{
			CustomerID: req.CustomerID,
			Email:      req.CustomerEmail,
			Name:       req.CustomerName,
			Phone:      req.CustomerPhone,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResp{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: sess.ExpiresAt,
		Total:     sess.Quote.Total.StringFixed(2),
		Deposit:   sess.Quote.Deposit.StringFixed(2),
	})
}
