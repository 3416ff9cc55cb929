package checkout

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys written to the processor.
const (
	MetaPayload        = "rental_payload"
	MetaPayloadParts   = "rental_payload_parts"
	MetaPayloadPart    = "rental_payload_%d"
	MetaTenantID       = "tenant_id"
	MetaIdempotencyKey = "idempotency_key"
	MetaRentalID       = "rental_id"
)

// DefaultLimit is the processor's per-value ceiling in encoded characters.
const DefaultLimit = 450

var (
	ErrPayloadMissing     = errors.New("checkout payload missing")
	ErrIncompletePayload  = errors.New("checkout payload incomplete")
	ErrMalformedPayload   = errors.New("checkout payload malformed")
	ErrUnsupportedVersion = errors.New("checkout payload version unsupported")
	ErrPayloadTooLarge    = errors.New("checkout payload too large")
)

// ChunkStrategy splits an encoded payload into ordered parts no longer than limit.
type ChunkStrategy func(encoded string, limit int) []string

// FixedWidth cuts encoded into limit-sized parts; the encoding is ASCII so byte and
// character counts agree.
func FixedWidth(encoded string, limit int) []string {
	var parts []string
	for len(encoded) > limit {
		parts = append(parts, encoded[:limit])
		encoded = encoded[limit:]
	}
	return append(parts, encoded)
}

type Codec struct {
	Limit int
	// MaxParts caps the number of chunks; zero means unbounded.
	MaxParts int
	Chunk    ChunkStrategy
}

func NewCodec(limit int) *Codec {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Codec{Limit: limit, Chunk: FixedWidth}
}

var encoding = base64.RawURLEncoding

// Encode returns the metadata entries for p: a single value when it fits, otherwise a
// part count plus one entry per chunk.
func (c *Codec) Encode(p *Payload) (map[string]string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	enc := encoding.EncodeToString(raw)
	if len(enc) <= c.Limit {
		return map[string]string{MetaPayload: enc}, nil
	}

	chunk := c.Chunk
	if chunk == nil {
		chunk = FixedWidth
	}
	parts := chunk(enc, c.Limit)
	if c.MaxParts > 0 && len(parts) > c.MaxParts {
		return nil, fmt.Errorf("%w: %d parts, max %d", ErrPayloadTooLarge, len(parts), c.MaxParts)
	}
	md := make(map[string]string, len(parts)+1)
	md[MetaPayloadParts] = strconv.Itoa(len(parts))
	for i, part := range parts {
		if len(part) > c.Limit {
			return nil, fmt.Errorf("%w: chunk %d is %d long", ErrPayloadTooLarge, i, len(part))
		}
		md[fmt.Sprintf(MetaPayloadPart, i)] = part
	}
	return md, nil
}

// HasPayload reports whether md carries an encoded payload in either form.
func HasPayload(md map[string]string) bool {
	_, single := md[MetaPayload]
	_, parts := md[MetaPayloadParts]
	return single || parts
}

func (c *Codec) Decode(md map[string]string) (*Payload, error) {
	enc, err := assemble(md)
	if err != nil {
		return nil, err
	}
	raw, err := encoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var probe struct {
		Version int `json:"v"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Version)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Key == "" || len(p.Tenants) == 0 {
		return nil, fmt.Errorf("%w: key or breakdowns missing", ErrMalformedPayload)
	}
	return &p, nil
}

func assemble(md map[string]string) (string, error) {
	if v, ok := md[MetaPayload]; ok {
		return v, nil
	}
	count, ok := md[MetaPayloadParts]
	if !ok {
		return "", ErrPayloadMissing
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 1 {
		return "", fmt.Errorf("%w: part count %q", ErrMalformedPayload, count)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		part, ok := md[fmt.Sprintf(MetaPayloadPart, i)]
		if !ok {
			return "", fmt.Errorf("%w: chunk %d of %d", ErrIncompletePayload, i, n)
		}
		b.WriteString(part)
	}
	return b.String(), nil
}
