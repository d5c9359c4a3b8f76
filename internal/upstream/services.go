package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
)

type OrderClient struct{ C *Client }

func (o *OrderClient) Create(ctx context.Context, req checkout.CreateOrderRequest) (checkout.Order, error) {
	var out checkout.Order
	err := o.C.do(ctx, call{method: http.MethodPost, path: "/orders", body: req}, &out)
	return out, err
}

func (o *OrderClient) Get(ctx context.Context, orderID string) (checkout.Order, error) {
	var out checkout.Order
	err := o.C.do(ctx, call{method: http.MethodGet, path: "/orders/" + url.PathEscape(orderID)}, &out)
	return out, mapStatus(err, "order", orderID)
}

func (o *OrderClient) Cancel(ctx context.Context, orderID string) error {
	err := o.C.do(ctx, call{method: http.MethodPost, path: "/orders/" + url.PathEscape(orderID) + "/cancel"}, nil)
	return mapStatus(err, "order", orderID)
}

type PromotionClient struct{ C *Client }

type promotionPreviewReq struct {
	UnitID string          `json:"unitId"`
	Items  []checkout.Item `json:"items"`
}

func (p *PromotionClient) Preview(ctx context.Context, unitID string, items []checkout.Item) (checkout.PricingPreview, error) {
	var out checkout.PricingPreview
	err := p.C.do(ctx, call{
		method: http.MethodPost,
		path:   "/promotions/preview",
		body:   promotionPreviewReq{UnitID: unitID, Items: items},
	}, &out)
	return out, err
}

type WalletClient struct{ C *Client }

type redeemPreviewReq struct {
	UnitID   string `json:"unitId"`
	Amount   int64  `json:"amount"`
	Subtotal int64  `json:"subtotal"`
}

type redeemReq struct {
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
}

func (w *WalletClient) Balance(ctx context.Context, unitID string) (checkout.WalletBalance, error) {
	var out checkout.WalletBalance
	err := w.C.do(ctx, call{
		method: http.MethodGet,
		path:   "/wallet/balance",
		query:  url.Values{"unitId": {unitID}},
	}, &out)
	if out.UnitID == "" {
		out.UnitID = unitID
	}
	return out, err
}

func (w *WalletClient) PreviewRedeem(ctx context.Context, unitID string, amount, subtotal int64) (checkout.CashbackPreview, error) {
	var out checkout.CashbackPreview
	err := w.C.do(ctx, call{
		method: http.MethodPost,
		path:   "/wallet/redeem/preview",
		body:   redeemPreviewReq{UnitID: unitID, Amount: amount, Subtotal: subtotal},
	}, &out)
	return out, err
}

// Redeem carries an idempotency key derived from the order so a re-issued
// redemption is applied once by the wallet.
func (w *WalletClient) Redeem(ctx context.Context, orderID string, amount int64) error {
	err := w.C.do(ctx, call{
		method:  http.MethodPost,
		path:    "/wallet/redeem",
		body:    redeemReq{OrderID: orderID, Amount: amount},
		headers: map[string]string{"Idempotency-Key": RedeemIdempotencyKey(orderID)},
	}, nil)
	return mapStatus(err, "order", orderID)
}

func RedeemIdempotencyKey(orderID string) string { return "redeem:" + orderID }

type DeliveryClient struct{ C *Client }

type quoteReq struct {
	Address checkout.Address `json:"address"`
	UnitID  string           `json:"unitId"`
	Items   []checkout.Item  `json:"items"`
}

type dispatchReq struct {
	OrderID  string `json:"orderId"`
	OptionID string `json:"optionId"`
}

func (d *DeliveryClient) Quote(ctx context.Context, address checkout.Address, unitID string, items []checkout.Item) ([]checkout.DeliveryOption, error) {
	var out []checkout.DeliveryOption
	err := d.C.do(ctx, call{
		method: http.MethodPost,
		path:   "/delivery/quote",
		body:   quoteReq{Address: address, UnitID: unitID, Items: items},
	}, &out)
	return out, err
}

func (d *DeliveryClient) Dispatch(ctx context.Context, orderID, optionID string) (checkout.Dispatch, error) {
	var out checkout.Dispatch
	err := d.C.do(ctx, call{
		method: http.MethodPost,
		path:   "/delivery/dispatch",
		body:   dispatchReq{OrderID: orderID, OptionID: optionID},
	}, &out)
	return out, mapStatus(err, "order", orderID)
}

var (
	_ checkout.OrderService     = (*OrderClient)(nil)
	_ checkout.PromotionService = (*PromotionClient)(nil)
	_ checkout.WalletService    = (*WalletClient)(nil)
	_ checkout.DeliveryService  = (*DeliveryClient)(nil)
)
