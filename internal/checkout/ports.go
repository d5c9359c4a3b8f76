package checkout

import (
	"context"
	"time"
)

// CreateOrderRequest is what the order service needs to reserve an order.
type CreateOrderRequest struct {
	UnitID     string `json:"unitId"`
	Items      []Item `json:"items"`
	Totals     Totals `json:"totals"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	Cancel(ctx context.Context, orderID string) error
}

type PromotionService interface {
	Preview(ctx context.Context, unitID string, items []Item) (PricingPreview, error)
}

type WalletService interface {
	Balance(ctx context.Context, unitID string) (WalletBalance, error)
	PreviewRedeem(ctx context.Context, unitID string, amount, subtotal int64) (CashbackPreview, error)
	Redeem(ctx context.Context, orderID string, amount int64) error
}

type DeliveryService interface {
	Quote(ctx context.Context, address Address, unitID string, items []Item) ([]DeliveryOption, error)
	Dispatch(ctx context.Context, orderID, optionID string) (Dispatch, error)
}

// RedemptionGuard claims the single redemption slot of an order.
// Claim returns false when the order was already claimed.
type RedemptionGuard interface {
	Claim(ctx context.Context, orderID string) (bool, error)
}

// RedemptionLedger durably records post-payment redemption attempts.
type RedemptionLedger interface {
	Begin(ctx context.Context, orderID, unitID string, amount int64) error
	MarkRedeemed(ctx context.Context, orderID string) error
	MarkFailed(ctx context.Context, orderID, reason string) error
}

// Clock is swapped in tests.
type Clock func() time.Time
