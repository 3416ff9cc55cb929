package redisx

import "time"

const (
	// Idempotent rental create: idem:rental:{tenant_id}:{idempotency_key} -> rental_id
	KeyIdemRental = "idem:rental:%s:%s"

	// Dedup event processing: dedup:{service}:{id} (id = webhook event id or rental id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
