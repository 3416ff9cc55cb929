package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventPaymentCanceled   = "payment_intent.canceled"
	EventChargeRefunded    = "charge.refunded"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a processor callback normalized to the fields the reconciler reads.
type Event struct {
	ID        string
	Type      string
	SessionID string
	// PaymentRef is the charge reference stored on rentals; it defaults to SessionID.
	PaymentRef string
	TenantID   string
	Metadata   map[string]string
	// Fallback overrides the status applied on failed or canceled payments.
	Fallback rentals.Status
}

func (e Event) ref() string {
	if e.PaymentRef != "" {
		return e.PaymentRef
	}
	return e.SessionID
}

// intentEnvelope is the intent-style webhook body:
// {"id","type","data":{"object":{"id","payment_intent","metadata"}}}.
type intentEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			Metadata      map[string]string `json:"metadata"`
			Fallback      string            `json:"fallback_status"`
		} `json:"object"`
	} `json:"data"`
}

// razorpayEnvelope is Razorpay's webhook body.
type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

var razorpayTypes = map[string]string{
	"order.paid":       EventCheckoutCompleted,
	"payment.captured": EventPaymentSucceeded,
	"payment.failed":   EventPaymentFailed,
	"refund.processed": EventChargeRefunded,
	"payment.refunded": EventChargeRefunded,
}

// ParseEvent accepts both the intent-style body and Razorpay's. Razorpay order ids are
// mapped to the same local id the gateway adapter hands out.
func ParseEvent(body []byte, eventID string) (Event, error) {
	var probe struct {
		Event string `json:"event"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if probe.Event != "" {
		var env razorpayEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		orderID := env.Payload.Order.Entity.ID
		notes := env.Payload.Order.Entity.Notes
		if orderID == "" {
			orderID = env.Payload.Payment.Entity.OrderID
			notes = env.Payload.Payment.Entity.Notes
		}
		if orderID == "" {
			return Event{}, fmt.Errorf("%w: no order id", ErrMalformedEvent)
		}
		typ, ok := razorpayTypes[env.Event]
		if !ok {
			typ = env.Event
		}
		id := eventID
		if id == "" {
			id = env.Event + ":" + orderID
		}
		local := gateway.LocalID(orderID)
		return Event{ID: id, Type: typ, SessionID: local, PaymentRef: local, TenantID: notes["tenant_id"], Metadata: notes}, nil
	}

	var env intentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" || env.Data.Object.ID == "" {
		return Event{}, fmt.Errorf("%w: type or object id missing", ErrMalformedEvent)
	}
	obj := env.Data.Object
	ev := Event{
		ID:        env.ID,
		Type:      env.Type,
		SessionID: obj.ID,
		Metadata:  obj.Metadata,
		Fallback:  rentals.Status(obj.Fallback),
	}
	if obj.PaymentIntent != "" {
		ev.PaymentRef = obj.PaymentIntent
	}
	if ev.ID == "" {
		ev.ID = eventID
	}
	if ev.Metadata != nil {
		ev.TenantID = ev.Metadata["tenant_id"]
	}
	return ev, nil
}
