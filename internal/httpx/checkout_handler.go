package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ItemReq struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CreateCheckoutReq struct {
	UnitID       string    `json:"unit_id"`
	Items        []ItemReq `json:"items"`
	RedeemAmount int64     `json:"redeem_amount"`
}

type CreateCheckoutResp struct {
	CheckoutID string         `json:"checkout_id"`
	State      checkout.State `json:"state"`
}

type CartReq struct {
	Items []ItemReq `json:"items"`
}

type RedeemReq struct {
	Amount int64 `json:"amount"`
}

type ReserveReq struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type QuoteReq struct {
	Address checkout.Address `json:"address"`
}

type DispatchReq struct {
	OptionID string `json:"option_id"`
}

type ConfirmReq struct {
	Retries    int `json:"retries"`
	IntervalMS int `json:"interval_ms"`
}

type CheckoutHandler struct {
	Sessions   *Sessions
	Logger     *zap.Logger
	DefaultTTL time.Duration
	Poll       checkout.PollOptions
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkouts", h.create)
	r.Route("/checkouts/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.cancel)
		r.Put("/cart", h.setCart)
		r.Put("/redeem", h.setRedeem)
		r.Post("/reserve", h.reserve)
		r.Post("/delivery/quote", h.quote)
		r.Post("/delivery/dispatch", h.dispatch)
		r.Post("/confirm", h.confirm)
		r.Post("/redemption/retry", h.retryRedemption)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps checkout errors to HTTP answers; anything unknown is
// reported as an upstream failure.
func (h *CheckoutHandler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *checkout.ValidationError
		notFound   *checkout.NotFoundError
		badState   *checkout.InvalidOrderStateError
		terminal   *checkout.AlreadyTerminalError
		ended      *checkout.OrderTerminalError
		noSel      *checkout.NoSelectionError
		conflict   *checkout.DispatchConflictError
		reserving  *checkout.AlreadyReservingError
		timeout    *checkout.TimeoutError
		redemption *checkout.RedemptionError
	)
	code := http.StatusBadGateway
	switch {
	case errors.As(err, &validation), errors.As(err, &noSel):
		code = http.StatusBadRequest
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &badState), errors.As(err, &terminal), errors.As(err, &ended),
		errors.As(err, &conflict), errors.As(err, &reserving):
		code = http.StatusConflict
	case errors.As(err, &timeout):
		code = http.StatusGatewayTimeout
	case errors.As(err, &redemption):
		code = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		h.logger().Warn("checkout request failed", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *CheckoutHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *CheckoutHandler) session(w http.ResponseWriter, r *http.Request) (*checkout.Coordinator, bool) {
	id := chi.URLParam(r, "id")
	c, ok := h.Sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "checkout not found"})
		return nil, false
	}
	return c, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func toItems(in []ItemReq) []checkout.Item {
	out := make([]checkout.Item, 0, len(in))
	for _, it := range in {
		out = append(out, checkout.Item{ProductID: it.ProductID, SKU: it.SKU, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutReq
	if !decode(w, r, &req) {
		return
	}
	if req.UnitID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing unit_id"})
		return
	}
	id, c := h.Sessions.New(req.UnitID)
	ctx := r.Context()
	if req.RedeemAmount > 0 {
		// no preview yet: the cart is empty, SetCart below computes it
		if err := c.SetRedeemAmount(ctx, req.RedeemAmount); err != nil {
			h.Sessions.Delete(id)
			h.writeError(w, err)
			return
		}
	}
	if len(req.Items) > 0 {
		if err := c.SetCart(ctx, toItems(req.Items)); err != nil {
			var validation *checkout.ValidationError
			if errors.As(err, &validation) {
				h.Sessions.Delete(id)
				h.writeError(w, err)
				return
			}
			// preview failures are recoverable; the state carries the message
			h.logger().Warn("initial preview failed", zap.String("checkout_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, CreateCheckoutResp{CheckoutID: id, State: c.State()})
}

func (h *CheckoutHandler) get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) setCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CartReq
	if !decode(w, r, &req) {
		return
	}
	if err := c.SetCart(r.Context(), toItems(req.Items)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) setRedeem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req RedeemReq
	if !decode(w, r, &req) {
		return
	}
	if err := c.SetRedeemAmount(r.Context(), req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) reserve(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ReserveReq
	if !decode(w, r, &req) {
		return
	}
	ttl := h.DefaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if _, err := c.Reserve(r.Context(), ttl); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) quote(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req QuoteReq
	if !decode(w, r, &req) {
		return
	}
	opts, err := c.Quote(r.Context(), req.Address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": opts})
}

func (h *CheckoutHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req DispatchReq
	if !decode(w, r, &req) {
		return
	}
	if req.OptionID != "" {
		c.SelectDelivery(req.OptionID)
	}
	d, err := c.Dispatch(r.Context(), req.OptionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// confirm blocks while the payment is polled. A client that disconnects
// cancels the poll and no redemption follows.
func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ConfirmReq
	if !decode(w, r, &req) {
		return
	}
	opts := h.Poll
	if req.Retries > 0 {
		opts.Retries = req.Retries
	}
	if req.IntervalMS > 0 {
		opts.Interval = time.Duration(req.IntervalMS) * time.Millisecond
	}
	if _, err := c.ConfirmPayment(r.Context(), opts); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) retryRedemption(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.RetryRedemption(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

func (h *CheckoutHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	err := c.Cancel(r.Context())
	h.Sessions.Delete(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
