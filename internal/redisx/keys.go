package redisx

import "time"

const (
	// Redemption claim per order: redeem:once:{order_id} -> claimant
	KeyRedeemOnce = "redeem:once:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLRedeemOnce = 30 * 24 * time.Hour
	TTLDedup      = 48 * time.Hour
)
