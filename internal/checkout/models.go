package checkout

import "time"

// All monetary amounts are minor units (cents).

type Item struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

func (it Item) LineTotal() int64 { return it.UnitPrice * int64(it.Quantity) }

type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	CashbackRedeem int64 `json:"cashbackRedeem"`
	Total          int64 `json:"total"`
}

// NewTotals caps the redeem at the subtotal and derives the payable total.
func NewTotals(subtotal, redeem int64) Totals {
	if redeem < 0 {
		redeem = 0
	}
	if redeem > subtotal {
		redeem = subtotal
	}
	total := subtotal - redeem
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: subtotal, CashbackRedeem: redeem, Total: total}
}

type Order struct {
	ID            string     `json:"id"`
	UnitID        string     `json:"unitId"`
	Items         []Item     `json:"items"`
	Totals        Totals     `json:"totals"`
	Status        Status     `json:"status"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
}

type Promotion struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

type PricingPreview struct {
	Promotions    []Promotion `json:"promotions"`
	Subtotal      int64       `json:"subtotal"`
	DiscountTotal int64       `json:"discountTotal"`
	Total         int64       `json:"total"`
}

type CashbackPreview struct {
	RequestedAmount  int64 `json:"requestedAmount"`
	AppliedAmount    int64 `json:"appliedAmount"`
	TotalAfterRedeem int64 `json:"totalAfterRedeem"`
}

type WalletBalance struct {
	UnitID   string `json:"unitId,omitempty"`
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

type DeliveryOption struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Method   string `json:"method"`
	Price    int64  `json:"price"`
	EtaDays  int    `json:"etaDays"`
}

type Dispatch struct {
	OrderID  string `json:"orderId"`
	OptionID string `json:"optionId"`
	Tracking string `json:"tracking"`
}

type Reservation struct {
	OrderID       string    `json:"orderId"`
	ReservedUntil time.Time `json:"reservedUntil"`
}
