package redisx

import "time"

const (
	// idem:order:place:{Idempotency-Key} -> order_id, or PENDING while in flight
	KeyIdemOrderPlace = "idem:order:place:%s"

	// order:{order_id} -> order JSON; orders are immutable so no invalidation
	KeyOrder = "order:%s"

	IdemPending = "PENDING"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
)
