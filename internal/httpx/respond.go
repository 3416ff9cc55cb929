package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-rental-settlement/internal/booking"
	"github.com/ariefcatur/go-rental-settlement/internal/checkout"
	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/holds"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

const HeaderTenantID = "X-Tenant-ID"

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResp{Error: code, Message: msg})
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{pricing.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{holds.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{pricing.ErrEmptyLineSet, http.StatusBadRequest, "empty_line_set"},
	{pricing.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{holds.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{holds.ErrInvalidTTL, http.StatusBadRequest, "invalid_ttl"},
	{pricing.ErrProductsUnavailable, http.StatusBadRequest, "unknown_product"},
	{rentals.ErrProductNotFound, http.StatusBadRequest, "unknown_product"},
	{pricing.ErrCrossTenantNotAllowed, http.StatusBadRequest, "cross_tenant_not_allowed"},
	{checkout.ErrCustomerRequired, http.StatusBadRequest, "customer_required"},
	{booking.ErrCustomerRequired, http.StatusBadRequest, "customer_required"},
	{booking.ErrPaymentIntentRequired, http.StatusBadRequest, "payment_intent_required"},
	{checkout.ErrPayloadTooLarge, http.StatusBadRequest, "cart_too_large"},
	{gateway.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{rentals.ErrRentalNotFound, http.StatusNotFound, "rental_not_found"},
	{rentals.ErrCustomerNotFound, http.StatusNotFound, "customer_not_found"},
	{rentals.ErrInsufficientAvailability, http.StatusConflict, "insufficient_availability"},
	{booking.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{rentals.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{booking.ErrIntentNotPayable, http.StatusConflict, "payment_intent_not_payable"},
	{booking.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
	{gateway.ErrIntentNotFound, http.StatusUnprocessableEntity, "payment_intent_not_found"},
}

// writeError maps domain errors to a status and a machine-readable code. Anything
// unknown is logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeCode(w, e.status, e.code, err.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeCode(w, http.StatusInternalServerError, "internal", "")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeCode(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// tenant reads the caller's tenant. The tenant directory lives outside this service.
func tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	t := r.Header.Get(HeaderTenantID)
	if t == "" {
		writeCode(w, http.StatusBadRequest, "tenant_required", "missing "+HeaderTenantID+" header")
		return "", false
	}
	return t, true
}

type dateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type itemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartReq struct {
	DateRange dateRange `json:"dateRange"`
	Items     []itemReq `json:"items"`
	Hourly    bool      `json:"hourly,omitempty"`
	Hours     int       `json:"hours,omitempty"`
}

func (c cartReq) lines() []pricing.Line {
	out := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, pricing.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
