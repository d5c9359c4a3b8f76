package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestReserveEmptyCartNeverCallsUpstream(t *testing.T) {
	orders := newFakeOrders()
	m := &ReservationManager{Orders: orders, Now: fixedClock}

	_, err := m.Reserve(context.Background(), ReserveRequest{UnitID: "unit-1"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "items", ve.Field)

	_, err = m.Reserve(context.Background(), ReserveRequest{Items: []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1}}})
	assert.ErrorIs(t, err, ErrNoUnit)

	creates, _, _ := orders.counts()
	assert.Zero(t, creates)
}

func TestReserveDefaultTTL(t *testing.T) {
	orders := newFakeOrders()
	m := &ReservationManager{Orders: orders, Now: fixedClock}

	res, err := m.Reserve(context.Background(), ReserveRequest{
		UnitID: "unit-1",
		Items:  []Item{{ProductID: "p1", Quantity: 2, UnitPrice: 5000}},
		Totals: Totals{Subtotal: 10000, CashbackRedeem: 2000},
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, fixedNow.Add(900*time.Second), res.ReservedUntil)

	require.Len(t, orders.creates, 1)
	req := orders.creates[0]
	assert.Equal(t, 900, req.TTLSeconds)
	assert.Equal(t, Totals{Subtotal: 10000, CashbackRedeem: 2000, Total: 8000}, req.Totals)
}

func TestReserveHonorsUpstreamDeadline(t *testing.T) {
	until := fixedNow.Add(5 * time.Minute)
	orders := newFakeOrders()
	orders.createFn = func(req CreateOrderRequest) (Order, error) {
		return Order{ID: "ord-x", Status: StatusReserved, ReservedUntil: &until}, nil
	}
	m := &ReservationManager{Orders: orders, Now: fixedClock}

	res, err := m.Reserve(context.Background(), ReserveRequest{
		UnitID: "unit-1",
		Items:  []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 100}},
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, until, res.ReservedUntil)
	assert.Equal(t, 60, orders.creates[0].TTLSeconds)
}

func TestReserveUpstreamFailure(t *testing.T) {
	orders := newFakeOrders()
	boom := errors.New("orders unavailable")
	orders.createFn = func(CreateOrderRequest) (Order, error) { return Order{}, boom }
	m := &ReservationManager{Orders: orders}

	_, err := m.Reserve(context.Background(), ReserveRequest{UnitID: "u", Items: []Item{{ProductID: "p", Quantity: 1}}})
	assert.ErrorIs(t, err, boom)
}

func TestCancelIsIdempotent(t *testing.T) {
	orders := newFakeOrders()
	orders.put(Order{ID: "ord-1", Status: StatusReserved})
	m := &ReservationManager{Orders: orders}

	require.NoError(t, m.Cancel(context.Background(), "ord-1"))
	require.NoError(t, m.Cancel(context.Background(), "ord-1"))

	_, _, cancels := orders.counts()
	assert.Equal(t, 1, cancels)
}

func TestCancelTerminalOrder(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusExpired, StatusFailed} {
		t.Run(string(s), func(t *testing.T) {
			orders := newFakeOrders()
			orders.put(Order{ID: "ord-1", Status: s})
			m := &ReservationManager{Orders: orders}

			err := m.Cancel(context.Background(), "ord-1")
			var te *AlreadyTerminalError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, s, te.Status)
			_, _, cancels := orders.counts()
			assert.Zero(t, cancels)
		})
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	m := &ReservationManager{Orders: newFakeOrders()}
	var nf *NotFoundError
	assert.True(t, errors.As(m.Cancel(context.Background(), "nope"), &nf))
	assert.True(t, errors.As(m.Cancel(context.Background(), ""), &nf))
}
