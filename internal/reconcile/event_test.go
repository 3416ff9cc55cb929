package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

func TestParseEvent_IntentShape(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_1",
			"metadata": {"tenant_id": "t1", "rental_id": "r1"},
			"fallback_status": "Cancelled"
		}}
	}`)

	ev, err := ParseEvent(body, "")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventPaymentFailed, ev.Type)
	assert.Equal(t, "cs_1", ev.SessionID)
	assert.Equal(t, "pi_1", ev.ref())
	assert.Equal(t, "t1", ev.TenantID)
	assert.Equal(t, rentals.StatusCancelled, ev.Fallback)
}

func TestParseEvent_HeaderIDUsedWhenBodyHasNone(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_2"}}}`), "hdr-1")
	require.NoError(t, err)
	assert.Equal(t, "hdr-1", ev.ID)
	assert.Equal(t, "cs_2", ev.ref())
}

func TestParseEvent_Razorpay(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_1", "order_id": "order_9", "notes": {"tenant_id": "t7"}
		}}}
	}`)

	ev, err := ParseEvent(body, "")
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, gateway.LocalID("order_9"), ev.SessionID)
	assert.Equal(t, "t7", ev.TenantID)
	assert.Equal(t, "payment.captured:order_9", ev.ID)

	paid, err := ParseEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_9"}}}}`), "rzp-1")
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, paid.Type)
	assert.Equal(t, ev.SessionID, paid.SessionID)
	assert.Equal(t, "rzp-1", paid.ID)
}

func TestParseEvent_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `{`,
		"no object id":    `{"type":"payment_intent.succeeded","data":{"object":{}}}`,
		"no type":         `{"data":{"object":{"id":"x"}}}`,
		"razorpay no ids": `{"event":"payment.failed","payload":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent([]byte(body), "")
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
