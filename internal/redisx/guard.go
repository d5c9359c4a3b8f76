package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedemptionGuard makes the first claimant of an order's cashback
// redemption win across every API replica.
type RedemptionGuard struct {
	Redis    redis.Cmdable
	Claimant string
}

func (g *RedemptionGuard) Claim(ctx context.Context, orderID string) (bool, error) {
	return SetOnce(ctx, g.Redis, fmt.Sprintf(KeyRedeemOnce, orderID), g.Claimant, TTLRedeemOnce)
}
