package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-rental-settlement/internal/holds"
)

type HoldsHandler struct {
	Manager *holds.Manager
}

func (h *HoldsHandler) Register(r chi.Router) {
	r.Post("/holds", h.create)
	r.Delete("/holds/{id}", h.delete)
}

type createHoldReq struct {
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	DateRange  dateRange `json:"dateRange"`
	TTLMinutes int       `json:"ttlMinutes,omitempty"`
	CustomerID string    `json:"customerId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
}

type holdResp struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *HoldsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req createHoldReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TTLMinutes < 0 {
		writeError(w, r, holds.ErrInvalidTTL)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	hold, err := h.Manager.CreateHold(ctx, holds.CreateRequest{
		TenantID:   tenantID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Start:      req.DateRange.Start,
		End:        req.DateRange.End,
		TTL:        time.Duration(req.TTLMinutes) * time.Minute,
		CustomerID: req.CustomerID,
		SessionID:  req.SessionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, holdResp{ID: hold.ID, ExpiresAt: hold.ExpiresAt})
}

func (h *HoldsHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deleted, err := h.Manager.DeleteHold(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeCode(w, http.StatusNotFound, "hold_not_found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
