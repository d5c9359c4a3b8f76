package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators shared by every checkout session.
type Deps struct {
	Pricing      *PricingEngine
	Reservations *ReservationManager
	Delivery     *DeliveryArranger
	Watcher      *PaymentWatcher
	Wallet       WalletService

	Guard  RedemptionGuard  // optional
	Ledger RedemptionLedger // optional
	Events Publisher        // optional, TopicCheckoutEvents
	Alerts Publisher        // optional, TopicCashbackRedeemFailed

	Poll          PollOptions
	RedeemTimeout time.Duration
	ServiceName   string
	Logger        *zap.Logger
	Metrics       *metrics.Checkout
	Now           Clock
}

const (
	RedemptionNone      = ""
	RedemptionPending   = "pending"
	RedemptionRedeemed  = "redeemed"
	RedemptionFailed    = "failed"
	RedemptionSkipped   = "skipped"
	RedemptionDuplicate = "duplicate"
)

type RedemptionState struct {
	Status     string     `json:"status,omitempty"`
	Amount     int64      `json:"amount"`
	Error      string     `json:"error,omitempty"`
	PaidSeenAt *time.Time `json:"paidSeenAt,omitempty"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
}

// State is a point-in-time copy of a checkout session for display.
type State struct {
	UnitID          string           `json:"unitId"`
	Items           []Item           `json:"items"`
	Subtotal        int64            `json:"subtotal"`
	RedeemAmount    int64            `json:"redeemAmount"`
	Pricing         *PricingPreview  `json:"pricing,omitempty"`
	Cashback        *CashbackPreview `json:"cashback,omitempty"`
	Balance         *WalletBalance   `json:"balance,omitempty"`
	PreviewError    string           `json:"previewError,omitempty"`
	OrderID         string           `json:"orderId,omitempty"`
	OrderStatus     Status           `json:"orderStatus,omitempty"`
	ReservedUntil   *time.Time       `json:"reservedUntil,omitempty"`
	ReservedRedeem  int64            `json:"reservedRedeem,omitempty"`
	SecondsLeft     int64            `json:"secondsLeft,omitempty"` // display only
	DeliveryOptions []DeliveryOption `json:"deliveryOptions,omitempty"`
	SelectedOption  string           `json:"selectedOption,omitempty"`
	Dispatch        *Dispatch        `json:"dispatch,omitempty"`
	Redemption      RedemptionState  `json:"redemption"`
}

// Coordinator runs one checkout attempt at a time. It owns the active order
// id: assigned once per attempt and cleared together with an epoch bump, so
// a watcher belonging to an abandoned attempt can never redeem.
type Coordinator struct {
	d Deps

	mu             sync.Mutex
	epoch          uint64 // bumped on reset
	version        uint64 // bumped on cart / redeem amount change
	previewVersion uint64 // version the current previews were computed for
	reserving      bool
	cart           CartSnapshot
	redeemAmount   int64
	pricing        *PricingPreview
	cashback       *CashbackPreview
	balance        *WalletBalance
	previewErr     error

	orderID        string
	orderStatus    Status
	reservedUntil  time.Time
	reservedRedeem int64 // cashback discount the reserved order carries
	watchSeq       uint64
	watchers       map[uint64]context.CancelFunc
	options       []DeliveryOption
	selected      string
	dispatch      *Dispatch
	redemption    RedemptionState
}

func NewCoordinator(d Deps, unitID string) *Coordinator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RedeemTimeout <= 0 {
		d.RedeemTimeout = 10 * time.Second
	}
	cart, _ := NewCartSnapshot(unitID, nil)
	return &Coordinator{d: d, cart: cart}
}

// SetCart replaces the cart and re-runs the previews. The cart is frozen
// once an order is reserved.
func (c *Coordinator) SetCart(ctx context.Context, items []Item) error {
	c.mu.Lock()
	if c.orderID != "" {
		defer c.mu.Unlock()
		return &InvalidOrderStateError{OrderID: c.orderID, Status: c.orderStatus, Op: "change cart of"}
	}
	if c.reserving {
		c.mu.Unlock()
		return &AlreadyReservingError{}
	}
	cart, err := NewCartSnapshot(c.cart.UnitID(), items)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.cart = cart
	c.version++
	c.mu.Unlock()
	return c.RefreshPreview(ctx)
}

// SetRedeemAmount changes the requested cashback amount and re-runs the
// previews. The applied amount may end up lower; read it from State.
func (c *Coordinator) SetRedeemAmount(ctx context.Context, amount int64) error {
	c.mu.Lock()
	if c.orderID != "" {
		defer c.mu.Unlock()
		return &InvalidOrderStateError{OrderID: c.orderID, Status: c.orderStatus, Op: "change redeem amount of"}
	}
	if c.reserving {
		c.mu.Unlock()
		return &AlreadyReservingError{}
	}
	if amount < 0 {
		amount = 0
	}
	c.redeemAmount = amount
	c.version++
	c.mu.Unlock()
	return c.RefreshPreview(ctx)
}

// RefreshPreview recomputes pricing, cashback and balance concurrently. A
// cart without unit or items clears the previews instead of calling out.
func (c *Coordinator) RefreshPreview(ctx context.Context) error {
	c.mu.Lock()
	cart, amount, epoch, version := c.cart, c.redeemAmount, c.epoch, c.version
	if !cart.Previewable() {
		c.pricing, c.cashback, c.previewErr = nil, nil, nil
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var (
		pricing  PricingPreview
		cashback CashbackPreview
		balance  WalletBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pricing, err = c.d.Pricing.Preview(gctx, cart.UnitID(), cart)
		return err
	})
	g.Go(func() (err error) {
		cashback, err = c.d.Pricing.PreviewCashback(gctx, cart.UnitID(), amount, cart.Subtotal())
		return err
	})
	g.Go(func() (err error) {
		balance, err = c.d.Pricing.Balance(gctx, cart.UnitID())
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || version != c.version {
		// superseded by a newer change; its own refresh wins
		return err
	}
	c.previewErr = err
	if err != nil {
		c.pricing, c.cashback = nil, nil
		return err
	}
	c.pricing, c.cashback, c.balance = &pricing, &cashback, &balance
	c.previewVersion = version
	return nil
}

// Reserve creates the order for the current cart. Only one reservation per
// attempt; a concurrent call fails with AlreadyReservingError.
func (c *Coordinator) Reserve(ctx context.Context, ttl time.Duration) (Reservation, error) {
	c.mu.Lock()
	if c.reserving {
		c.mu.Unlock()
		return Reservation{}, &AlreadyReservingError{}
	}
	if c.orderID != "" {
		defer c.mu.Unlock()
		return Reservation{}, &InvalidOrderStateError{OrderID: c.orderID, Status: c.orderStatus, Op: "reserve"}
	}
	if c.cart.Empty() {
		c.mu.Unlock()
		return Reservation{}, ErrEmptyCart
	}
	if c.cart.UnitID() == "" {
		c.mu.Unlock()
		return Reservation{}, ErrNoUnit
	}
	// the order must carry exactly the discount that will be redeemed later
	if c.redeemAmount > 0 && (c.cashback == nil || c.previewVersion != c.version) {
		c.mu.Unlock()
		return Reservation{}, ErrNoCashbackPreview
	}
	var redeem int64
	if c.cashback != nil {
		redeem = c.cashback.AppliedAmount
	}
	cart, epoch := c.cart, c.epoch
	totals := NewTotals(cart.Subtotal(), redeem)
	c.reserving = true
	c.mu.Unlock()

	res, err := c.d.Reservations.Reserve(ctx, ReserveRequest{
		UnitID: cart.UnitID(),
		Items:  cart.Items(),
		Totals: totals,
		TTL:    ttl,
	})

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		if err == nil {
			c.d.Logger.Warn("checkout reset during reservation, releasing order", zap.String("order_id", res.OrderID))
			if cerr := c.d.Reservations.Cancel(context.WithoutCancel(ctx), res.OrderID); cerr != nil {
				c.d.Logger.Warn("release orphan reservation", zap.String("order_id", res.OrderID), zap.Error(cerr))
			}
		}
		return Reservation{}, &InvalidOrderStateError{Op: "reserve (checkout was reset)"}
	}
	c.reserving = false
	if err != nil {
		c.mu.Unlock()
		return Reservation{}, err
	}
	c.orderID = res.OrderID
	c.orderStatus = StatusReserved
	c.reservedUntil = res.ReservedUntil
	c.reservedRedeem = totals.CashbackRedeem
	if c.selected != "" {
		c.d.Delivery.Select(res.OrderID, c.selected)
	}
	c.mu.Unlock()

	c.emit(EventCheckoutReserved, res.OrderID, CheckoutReservedPayload{
		OrderID:       res.OrderID,
		UnitID:        cart.UnitID(),
		Totals:        totals,
		ReservedUntil: res.ReservedUntil,
	})

	// balances and promotions may have moved while the order was created
	if err := c.RefreshPreview(ctx); err != nil {
		c.d.Logger.Warn("preview refresh after reservation failed", zap.String("order_id", res.OrderID), zap.Error(err))
	}
	return res, nil
}

func (c *Coordinator) Quote(ctx context.Context, address Address) ([]DeliveryOption, error) {
	c.mu.Lock()
	cart, epoch := c.cart, c.epoch
	c.mu.Unlock()

	opts, err := c.d.Delivery.Quote(ctx, address, cart.UnitID(), cart.Items())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if epoch == c.epoch {
		c.options = opts
	}
	c.mu.Unlock()
	return opts, nil
}

func (c *Coordinator) SelectDelivery(optionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = optionID
	if c.orderID != "" {
		c.d.Delivery.Select(c.orderID, optionID)
	}
}

// Dispatch binds optionID, or the selected option when empty, to the active
// order. It does not wait for payment.
func (c *Coordinator) Dispatch(ctx context.Context, optionID string) (Dispatch, error) {
	c.mu.Lock()
	orderID, epoch := c.orderID, c.epoch
	if optionID == "" {
		optionID = c.selected
	}
	c.mu.Unlock()

	d, err := c.d.Delivery.Dispatch(ctx, orderID, optionID)
	if err != nil {
		return Dispatch{}, err
	}
	c.mu.Lock()
	if epoch == c.epoch && orderID == c.orderID {
		c.dispatch = &d
		c.selected = d.OptionID
	}
	c.mu.Unlock()
	return d, nil
}

// ConfirmPayment waits for the active order to be paid and only then redeems
// the previewed cashback, at most once. It is safe to call again after a
// TimeoutError.
func (c *Coordinator) ConfirmPayment(ctx context.Context, opts PollOptions) (Order, error) {
	c.mu.Lock()
	orderID, epoch := c.orderID, c.epoch
	if orderID == "" {
		c.mu.Unlock()
		return Order{}, &InvalidOrderStateError{Op: "confirm payment of"}
	}
	// Reset stops the poll through this cancel func
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	c.watchSeq++
	watchID := c.watchSeq
	if c.watchers == nil {
		c.watchers = map[uint64]context.CancelFunc{}
	}
	c.watchers[watchID] = stop
	c.mu.Unlock()
	defer c.unwatch(watchID)

	if opts.Retries <= 0 && opts.Interval <= 0 {
		opts = c.d.Poll
	}

	o, err := c.d.Watcher.WaitForPaid(wctx, orderID, opts)
	if err != nil {
		c.mu.Lock()
		abandoned := epoch != c.epoch || orderID != c.orderID
		var term *OrderTerminalError
		if !abandoned && errors.As(err, &term) {
			c.orderStatus = term.Status
		}
		c.mu.Unlock()
		if abandoned && ctx.Err() == nil {
			return Order{}, &InvalidOrderStateError{OrderID: orderID, Op: "confirm payment of abandoned"}
		}
		return Order{}, err
	}
	seen := c.d.Now()

	c.mu.Lock()
	if epoch != c.epoch || orderID != c.orderID {
		c.mu.Unlock()
		c.d.Logger.Warn("payment observed for abandoned checkout, not redeeming", zap.String("order_id", orderID))
		return o, &InvalidOrderStateError{OrderID: orderID, Status: o.Status, Op: "redeem cashback for abandoned"}
	}
	c.orderStatus = StatusPaid
	if c.redemption.Status != RedemptionNone {
		c.mu.Unlock()
		return o, nil
	}
	c.redemption.PaidSeenAt = &seen
	// never more than the discount the paid order was reserved with
	amount := c.reservedRedeem
	if c.cashback != nil {
		amount = min(amount, c.cashback.AppliedAmount)
	}
	if amount <= 0 {
		c.redemption.Status = RedemptionSkipped
		c.mu.Unlock()
		c.afterPaid(ctx, o, seen)
		return o, nil
	}
	c.redemption.Status = RedemptionPending
	c.redemption.Amount = amount
	c.mu.Unlock()

	c.emit(EventPaymentConfirmed, o.ID, PaymentConfirmedPayload{OrderID: o.ID, ObservedAt: seen})
	if err := c.redeem(ctx, o, amount, true); err != nil {
		return o, err
	}
	return o, nil
}

func (c *Coordinator) unwatch(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watchers, id)
}

func (c *Coordinator) afterPaid(ctx context.Context, o Order, seen time.Time) {
	c.emit(EventPaymentConfirmed, o.ID, PaymentConfirmedPayload{OrderID: o.ID, ObservedAt: seen})
	c.refreshBalance(ctx)
}

// RetryRedemption re-issues a redemption that failed after payment. The
// wallet treats redemption per order as idempotent.
func (c *Coordinator) RetryRedemption(ctx context.Context) error {
	c.mu.Lock()
	if c.redemption.Status != RedemptionFailed || c.orderStatus != StatusPaid {
		defer c.mu.Unlock()
		return &InvalidOrderStateError{OrderID: c.orderID, Status: c.orderStatus, Op: "retry redemption of"}
	}
	amount := c.redemption.Amount
	o := Order{ID: c.orderID, UnitID: c.cart.UnitID(), Status: StatusPaid}
	c.redemption.Status = RedemptionPending
	c.mu.Unlock()
	return c.redeem(ctx, o, amount, false)
}

func (c *Coordinator) redeem(ctx context.Context, o Order, amount int64, claim bool) error {
	// the payment already happened: finish even if the caller walks away
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.d.RedeemTimeout)
	defer cancel()
	log := c.d.Logger.With(zap.String("order_id", o.ID), zap.Int64("amount", amount))

	if claim && c.d.Guard != nil {
		ok, err := c.d.Guard.Claim(rctx, o.ID)
		if err != nil {
			return c.redeemFailed(rctx, o, amount, fmt.Errorf("claim redemption: %w", err))
		}
		if !ok {
			log.Warn("cashback redemption already claimed for order")
			c.d.Metrics.Redemption("duplicate")
			c.setRedemption(o.ID, RedemptionDuplicate, "", nil)
			return nil
		}
	}
	if c.d.Ledger != nil {
		if err := c.d.Ledger.Begin(rctx, o.ID, o.UnitID, amount); err != nil {
			log.Warn("ledger begin failed", zap.Error(err))
		}
	}
	if err := c.d.Wallet.Redeem(rctx, o.ID, amount); err != nil {
		return c.redeemFailed(rctx, o, amount, err)
	}

	at := c.d.Now()
	if c.d.Ledger != nil {
		if err := c.d.Ledger.MarkRedeemed(rctx, o.ID); err != nil {
			log.Warn("ledger mark redeemed failed", zap.Error(err))
		}
	}
	c.d.Metrics.Redemption("ok")
	c.setRedemption(o.ID, RedemptionRedeemed, "", &at)
	log.Info("cashback redeemed")
	c.emit(EventCashbackRedeemed, o.ID, CashbackRedeemedPayload{OrderID: o.ID, UnitID: o.UnitID, Amount: amount})
	c.refreshBalance(rctx)
	return nil
}

// redeemFailed logs at error level, marks the ledger and raises an alert:
// the customer paid and did not get the reward.
func (c *Coordinator) redeemFailed(ctx context.Context, o Order, amount int64, cause error) error {
	c.d.Logger.Error("CASHBACK REDEMPTION FAILED AFTER PAYMENT",
		zap.String("order_id", o.ID),
		zap.String("unit_id", o.UnitID),
		zap.Int64("amount", amount),
		zap.Error(cause),
	)
	c.d.Metrics.Redemption("failed")
	if c.d.Ledger != nil {
		if err := c.d.Ledger.MarkFailed(ctx, o.ID, cause.Error()); err != nil {
			c.d.Logger.Error("ledger mark failed failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	c.setRedemption(o.ID, RedemptionFailed, cause.Error(), nil)
	payload := CashbackRedeemFailedPayload{OrderID: o.ID, UnitID: o.UnitID, Amount: amount, Reason: cause.Error()}
	if ev, err := NewEnvelope(c.d.ServiceName, EventCashbackRedeemFailed, o.ID, payload); err == nil {
		if err := publishEnvelope(c.d.Alerts, ev); err != nil {
			c.d.Logger.Error("publish redemption alert", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return &RedemptionError{OrderID: o.ID, Amount: amount, Err: cause}
}

func (c *Coordinator) setRedemption(orderID, status, errMsg string, at *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if orderID != c.orderID {
		return
	}
	c.redemption.Status = status
	c.redemption.Error = errMsg
	if at != nil {
		c.redemption.RedeemedAt = at
	}
}

func (c *Coordinator) refreshBalance(ctx context.Context) {
	c.mu.Lock()
	unit, epoch := c.cart.UnitID(), c.epoch
	c.mu.Unlock()
	if unit == "" {
		return
	}
	b, err := c.d.Pricing.Balance(ctx, unit)
	if err != nil {
		c.d.Logger.Warn("wallet balance refresh failed", zap.String("unit_id", unit), zap.Error(err))
		return
	}
	c.mu.Lock()
	if epoch == c.epoch {
		c.balance = &b
	}
	c.mu.Unlock()
}

// Cancel releases the upstream reservation when one is live and resets the
// session. The reset happens whatever the upstream answer was.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	orderID := c.orderID
	c.mu.Unlock()

	var cancelErr error
	if orderID != "" {
		err := c.d.Reservations.Cancel(ctx, orderID)
		var (
			term *AlreadyTerminalError
			nf   *NotFoundError
		)
		switch {
		case err == nil:
			c.emit(EventCheckoutCanceled, orderID, CheckoutCanceledPayload{OrderID: orderID, Reason: "client cancel"})
		case errors.As(err, &term), errors.As(err, &nf):
			c.d.Logger.Info("nothing to cancel upstream", zap.String("order_id", orderID), zap.Error(err))
		default:
			cancelErr = err
		}
	}
	c.Reset()
	return cancelErr
}

// Reset clears the order and empties the cart without calling out.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderID != "" {
		c.d.Delivery.Forget(c.orderID)
	}
	for id, stop := range c.watchers {
		stop()
		delete(c.watchers, id)
	}
	c.epoch++
	c.version++
	c.reserving = false
	c.cart, _ = NewCartSnapshot(c.cart.UnitID(), nil)
	c.redeemAmount = 0
	c.pricing, c.cashback, c.previewErr = nil, nil, nil
	c.orderID, c.orderStatus, c.reservedUntil, c.reservedRedeem = "", "", time.Time{}, 0
	c.options, c.selected, c.dispatch = nil, "", nil
	c.redemption = RedemptionState{}
}

func (c *Coordinator) OrderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderID
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		UnitID:          c.cart.UnitID(),
		Items:           c.cart.Items(),
		Subtotal:        c.cart.Subtotal(),
		RedeemAmount:    c.redeemAmount,
		Pricing:         c.pricing,
		Cashback:        c.cashback,
		Balance:         c.balance,
		OrderID:         c.orderID,
		OrderStatus:     c.orderStatus,
		ReservedRedeem:  c.reservedRedeem,
		DeliveryOptions: c.options,
		SelectedOption:  c.selected,
		Dispatch:        c.dispatch,
		Redemption:      c.redemption,
	}
	if c.previewErr != nil {
		s.PreviewError = c.previewErr.Error()
	}
	if !c.reservedUntil.IsZero() && c.orderStatus == StatusReserved {
		until := c.reservedUntil
		s.ReservedUntil = &until
		if left := until.Sub(c.d.Now()); left > 0 {
			s.SecondsLeft = int64(left / time.Second)
		}
	}
	return s
}

func (c *Coordinator) emit(eventType, orderID string, payload any) {
	if c.d.Events == nil {
		return
	}
	ev, err := NewEnvelope(c.d.ServiceName, eventType, orderID, payload)
	if err == nil {
		err = publishEnvelope(c.d.Events, ev)
	}
	if err != nil {
		c.d.Logger.Warn("publish checkout event", zap.String("event_type", eventType), zap.Error(err))
	}
}
