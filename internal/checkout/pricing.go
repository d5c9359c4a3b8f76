package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PricingEngine previews promotion discounts and cashback caps. It has no
// side effects and is re-run from scratch whenever the cart or the requested
// cashback amount changes.
type PricingEngine struct {
	Promotions PromotionService
	Wallet     WalletService
	Logger     *zap.Logger
}

func (e *PricingEngine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Preview fails with ErrNoUnit / ErrEmptyCart; callers are expected to skip
// the call for such carts rather than surface an error.
func (e *PricingEngine) Preview(ctx context.Context, unitID string, cart CartSnapshot) (PricingPreview, error) {
	if unitID == "" {
		return PricingPreview{}, ErrNoUnit
	}
	if cart.Empty() {
		return PricingPreview{}, ErrEmptyCart
	}
	p, err := e.Promotions.Preview(ctx, unitID, cart.Items())
	if err != nil {
		return PricingPreview{}, fmt.Errorf("promotions preview: %w", err)
	}
	return normalizePricing(cart.Subtotal(), p), nil
}

func normalizePricing(subtotal int64, p PricingPreview) PricingPreview {
	out := PricingPreview{Subtotal: subtotal, Promotions: make([]Promotion, 0, len(p.Promotions))}
	for _, pr := range p.Promotions {
		if pr.Amount < 0 {
			pr.Amount = 0
		}
		out.Promotions = append(out.Promotions, pr)
		out.DiscountTotal += pr.Amount
	}
	out.Total = subtotal - out.DiscountTotal
	return out
}

// PreviewCashback never rejects an over-request: the amount is silently
// capped to the balance and the subtotal. Callers must read AppliedAmount
// instead of assuming the request was honored.
func (e *PricingEngine) PreviewCashback(ctx context.Context, unitID string, amount, subtotal int64) (CashbackPreview, error) {
	if unitID == "" {
		return CashbackPreview{}, ErrNoUnit
	}
	if amount < 0 {
		amount = 0
	}
	if subtotal < 0 {
		subtotal = 0
	}
	p, err := e.Wallet.PreviewRedeem(ctx, unitID, amount, subtotal)
	if err != nil {
		return CashbackPreview{}, fmt.Errorf("wallet redeem preview: %w", err)
	}
	applied := clamp(p.AppliedAmount, 0, min(amount, subtotal))
	if applied != p.AppliedAmount {
		e.logger().Warn("wallet preview exceeded local cap",
			zap.String("unit_id", unitID),
			zap.Int64("requested", amount),
			zap.Int64("upstream_applied", p.AppliedAmount),
			zap.Int64("applied", applied),
		)
	}
	return CashbackPreview{
		RequestedAmount:  amount,
		AppliedAmount:    applied,
		TotalAfterRedeem: subtotal - applied,
	}, nil
}

func (e *PricingEngine) Balance(ctx context.Context, unitID string) (WalletBalance, error) {
	if unitID == "" {
		return WalletBalance{}, ErrNoUnit
	}
	b, err := e.Wallet.Balance(ctx, unitID)
	if err != nil {
		return WalletBalance{}, fmt.Errorf("wallet balance: %w", err)
	}
	return b, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
