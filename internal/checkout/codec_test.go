package checkout

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

func samplePayload(tenants int) *Payload {
	p := &Payload{
		Version:  PayloadVersion,
		Key:      "5b0c1f7e-2a3d-4d8e-9f10-112233445566",
		Customer: rentals.CustomerSnapshot{CustomerID: "c1", Email: "ana@example.com", Name: "Ana", Phone: "+911234"},
		Start:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC),
		Currency: "INR",
		Total:    decimal.RequireFromString("105"),
		Deposit:  decimal.RequireFromString("31.5"),
	}
	for i := 0; i < tenants; i++ {
		p.Tenants = append(p.Tenants, TenantBreakdown{
			TenantID: fmt.Sprintf("tenant-%02d", i),
			Total:    decimal.RequireFromString("35"),
			Deposit:  decimal.RequireFromString("10.5"),
			Items: []PayloadItem{
				{ProductID: fmt.Sprintf("product-%02d-a", i), Quantity: 2, UnitPrice: decimal.RequireFromString("5"), Subtotal: decimal.RequireFromString("30")},
				{ProductID: fmt.Sprintf("product-%02d-b", i), Quantity: 1, UnitPrice: decimal.RequireFromString("1.67"), Subtotal: decimal.RequireFromString("5")},
			},
		})
	}
	return p
}

func canonical(t *testing.T, p *Payload) string {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return string(b)
}

func TestCodec_SingleValueRoundTrip(t *testing.T) {
	c := NewCodec(0)
	p := samplePayload(1)
	p.Customer = rentals.CustomerSnapshot{Email: "ana@example.com"}

	md, err := c.Encode(p)
	require.NoError(t, err)
	require.Contains(t, md, MetaPayload)
	assert.NotContains(t, md, MetaPayloadParts)
	assert.LessOrEqual(t, len(md[MetaPayload]), DefaultLimit)

	got, err := c.Decode(md)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, p), canonical(t, got))
	assert.True(t, got.Deposit.Equal(p.Deposit))
	assert.True(t, got.Start.Equal(p.Start))
}

func TestCodec_ChunkedRoundTrip(t *testing.T) {
	c := NewCodec(0)
	p := samplePayload(6)

	md, err := c.Encode(p)
	require.NoError(t, err)
	require.Contains(t, md, MetaPayloadParts)
	assert.NotContains(t, md, MetaPayload)

	parts := 0
	for k, v := range md {
		if strings.HasPrefix(k, "rental_payload_") && k != MetaPayloadParts {
			parts++
			assert.LessOrEqual(t, len(v), DefaultLimit)
		}
	}
	assert.Equal(t, fmt.Sprint(parts), md[MetaPayloadParts])
	assert.Greater(t, parts, 1)

	got, err := c.Decode(md)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, p), canonical(t, got))
}

func TestCodec_IncompletePayload(t *testing.T) {
	c := NewCodec(0)
	md, err := c.Encode(samplePayload(6))
	require.NoError(t, err)

	delete(md, "rental_payload_1")
	_, err = c.Decode(md)
	assert.ErrorIs(t, err, ErrIncompletePayload)
}

func TestCodec_DecodeErrors(t *testing.T) {
	c := NewCodec(0)

	_, err := c.Decode(map[string]string{"other": "x"})
	assert.ErrorIs(t, err, ErrPayloadMissing)

	_, err = c.Decode(map[string]string{MetaPayload: "!!not base64!!"})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = c.Decode(map[string]string{MetaPayloadParts: "zero"})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = c.Decode(map[string]string{MetaPayload: encoding.EncodeToString([]byte(`{"v":1`))})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = c.Decode(map[string]string{MetaPayload: encoding.EncodeToString([]byte(`{"v":9,"k":"x"}`))})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = c.Decode(map[string]string{MetaPayload: encoding.EncodeToString([]byte(`{"v":1,"k":"x","b":[]}`))})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCodec_CustomChunkStrategyAndCap(t *testing.T) {
	halves := func(enc string, limit int) []string {
		mid := len(enc) / 2
		return []string{enc[:mid], enc[mid:]}
	}
	p := samplePayload(2)
	raw, err := NewCodec(1 << 20).Encode(p)
	require.NoError(t, err)
	size := len(raw[MetaPayload])

	c := &Codec{Limit: size/2 + 1, Chunk: halves}
	md, err := c.Encode(p)
	require.NoError(t, err)
	assert.Equal(t, "2", md[MetaPayloadParts])
	got, err := c.Decode(md)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, p), canonical(t, got))

	capped := &Codec{Limit: 50, MaxParts: 3}
	_, err = capped.Encode(p)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFixedWidth(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, FixedWidth("abcdefg", 3))
	assert.Equal(t, []string{"abc"}, FixedWidth("abc", 3))
}

func TestHasPayload(t *testing.T) {
	assert.True(t, HasPayload(map[string]string{MetaPayload: "x"}))
	assert.True(t, HasPayload(map[string]string{MetaPayloadParts: "2"}))
	assert.False(t, HasPayload(map[string]string{"tenant_id": "t1"}))
}
