package httpx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/metrics"
	"github.com/ariefcatur/go-rental-settlement/internal/reconcile"
)

const (
	HeaderSignature         = "X-Webhook-Signature"
	HeaderRazorpaySignature = "X-Razorpay-Signature"
	HeaderRazorpayEventID   = "X-Razorpay-Event-Id"
)

type EventHandler interface {
	Handle(ctx context.Context, ev reconcile.Event) (*reconcile.Outcome, error)
}

// Deduper is satisfied by redisx.Deduper.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type WebhookHandler struct {
	Events EventHandler
	// Secret enables signature checks. Empty accepts unsigned bodies (development).
	Secret string
	Dedup  Deduper
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/payment-processor", h.receive)
}

type webhookResp struct {
	Received  bool   `json:"received"`
	Outcome   string `json:"outcome"`
	Created   int    `json:"created,omitempty"`
	Updated   int    `json:"updated,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of body, the value expected in X-Webhook-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(r *http.Request, body []byte) bool {
	if h.Secret == "" {
		return true
	}
	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		sig = r.Header.Get(HeaderRazorpaySignature)
	}
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(h.Secret, body))
	return hmac.Equal(got, want)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeCode(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if !h.verify(r, body) {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		writeCode(w, http.StatusUnauthorized, "invalid_signature", "")
		return
	}

	ev, err := reconcile.ParseEvent(body, r.Header.Get(HeaderRazorpayEventID))
	if err != nil {
		// permanently malformed; acknowledge so the processor stops redelivering
		logger.ErrorContext(r.Context(), "dropping malformed webhook", "error", err, "bytes", len(body))
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		writeJSON(w, http.StatusOK, webhookResp{Received: true, Outcome: "malformed"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	claimed := false
	if h.Dedup != nil && ev.ID != "" {
		fresh, err := h.Dedup.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "webhook dedup unavailable", "event_id", ev.ID, "error", err)
		case !fresh:
			metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
			writeJSON(w, http.StatusOK, webhookResp{Received: true, Outcome: "duplicate", Duplicate: true})
			return
		default:
			claimed = true
		}
	}

	out, err := h.Events.Handle(ctx, ev)
	if err != nil {
		if claimed {
			if rerr := h.Dedup.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
				logger.WarnContext(ctx, "webhook dedup release failed", "event_id", ev.ID, "error", rerr)
			}
		}
		logger.ErrorContext(ctx, "webhook processing failed, asking for redelivery",
			"event_id", ev.ID, "event_type", ev.Type, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "retry").Inc()
		writeCode(w, http.StatusInternalServerError, "retry", "")
		return
	}

	resp := webhookResp{
		Received: true,
		Outcome:  outcome(out),
		Created:  len(out.Created),
		Updated:  len(out.Updated),
		Skipped:  len(out.Mismatched) + len(out.Conflicts),
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, resp.Outcome).Inc()
	writeJSON(w, http.StatusOK, resp)
}

func outcome(o *reconcile.Outcome) string {
	switch {
	case o.Ignored:
		return "ignored"
	case o.Dropped:
		return "dropped"
	case len(o.Mismatched) > 0:
		return "mismatch"
	case len(o.Conflicts) > 0:
		return "conflict"
	default:
		return "processed"
	}
}
