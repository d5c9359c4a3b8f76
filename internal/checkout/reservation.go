package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"go.uber.org/zap"
)

const DefaultReservationTTL = 900 * time.Second

type ReserveRequest struct {
	UnitID string
	Items  []Item
	Totals Totals
	TTL    time.Duration // DefaultReservationTTL when zero
}

// ReservationManager creates time-boxed order reservations. It keeps no view
// of order status of its own: every decision re-fetches from the order
// service, which alone enforces expiry.
type ReservationManager struct {
	Orders  OrderService
	Logger  *zap.Logger
	Metrics *metrics.Checkout
	Now     Clock
}

func (m *ReservationManager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *ReservationManager) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func (m *ReservationManager) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if len(req.Items) == 0 {
		return Reservation{}, ErrEmptyCart
	}
	if req.UnitID == "" {
		return Reservation{}, ErrNoUnit
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	totals := NewTotals(req.Totals.Subtotal, req.Totals.CashbackRedeem)

	started := m.now()
	o, err := m.Orders.Create(ctx, CreateOrderRequest{
		UnitID:     req.UnitID,
		Items:      req.Items,
		Totals:     totals,
		TTLSeconds: int(ttl / time.Second),
	})
	if err != nil {
		m.Metrics.Reservation("error")
		return Reservation{}, fmt.Errorf("create order: %w", err)
	}
	if o.ID == "" {
		m.Metrics.Reservation("error")
		return Reservation{}, errors.New("create order: order service returned no id")
	}

	until := started.Add(ttl)
	if o.ReservedUntil != nil {
		until = *o.ReservedUntil
	}
	m.Metrics.Reservation("ok")
	m.logger().Info("order reserved",
		zap.String("order_id", o.ID),
		zap.String("unit_id", req.UnitID),
		zap.Int64("total", totals.Total),
		zap.Time("reserved_until", until),
	)
	return Reservation{OrderID: o.ID, ReservedUntil: until}, nil
}

func (m *ReservationManager) Get(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, &NotFoundError{Resource: "order", ID: orderID}
	}
	return m.Orders.Get(ctx, orderID)
}

// Cancel is idempotent: an order that is already canceled is left alone and
// nil is returned. Orders that ended any other way yield AlreadyTerminalError.
func (m *ReservationManager) Cancel(ctx context.Context, orderID string) error {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return err
	}
	switch {
	case o.Status == StatusCanceled:
		return nil
	case o.Status.Terminal():
		return &AlreadyTerminalError{OrderID: orderID, Status: o.Status}
	}
	if err := m.Orders.Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	m.logger().Info("order canceled", zap.String("order_id", orderID), zap.String("from", string(o.Status)))
	return nil
}
