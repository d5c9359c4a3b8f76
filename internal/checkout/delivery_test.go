package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArranger(status Status) (*DeliveryArranger, *fakeDelivery, *fakeOrders) {
	orders := newFakeOrders()
	orders.put(Order{ID: "ord-1", Status: status})
	d := &fakeDelivery{options: []DeliveryOption{
		{ID: "std", Provider: "correios", Method: "standard", Price: 1500, EtaDays: 5},
		{ID: "exp", Provider: "correios", Method: "express", Price: 3500, EtaDays: 1},
	}}
	return &DeliveryArranger{Delivery: d, Orders: orders}, d, orders
}

func TestQuote(t *testing.T) {
	a, d, _ := newArranger(StatusReserved)

	opts, err := a.Quote(context.Background(), Address{City: "Recife"}, "unit-1", nil)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	d.options = nil
	opts, err = a.Quote(context.Background(), Address{City: "Nowhere"}, "unit-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, opts)
	assert.Empty(t, opts)

	_, err = a.Quote(context.Background(), Address{}, "", nil)
	assert.ErrorIs(t, err, ErrNoUnit)
}

func TestDispatchWithoutOrder(t *testing.T) {
	a, d, _ := newArranger(StatusReserved)
	_, err := a.Dispatch(context.Background(), "", "std")
	var ise *InvalidOrderStateError
	assert.True(t, errors.As(err, &ise))
	assert.Zero(t, d.dispatches)
}

func TestDispatchWithoutSelection(t *testing.T) {
	a, _, _ := newArranger(StatusReserved)
	_, err := a.Dispatch(context.Background(), "ord-1", "")
	var ns *NoSelectionError
	assert.True(t, errors.As(err, &ns))
}

func TestDispatchUsesSelection(t *testing.T) {
	a, d, _ := newArranger(StatusReserved)
	a.Select("ord-1", "exp")

	got, err := a.Dispatch(context.Background(), "ord-1", "")
	require.NoError(t, err)
	assert.Equal(t, "exp", got.OptionID)
	assert.Equal(t, "TRK-ord-1", got.Tracking)
	assert.Equal(t, 1, d.dispatches)
}

func TestDispatchIsBoundOnce(t *testing.T) {
	a, d, _ := newArranger(StatusPaid)

	first, err := a.Dispatch(context.Background(), "ord-1", "std")
	require.NoError(t, err)

	again, err := a.Dispatch(context.Background(), "ord-1", "std")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = a.Dispatch(context.Background(), "ord-1", "exp")
	var dc *DispatchConflictError
	require.True(t, errors.As(err, &dc))
	assert.Equal(t, "std", dc.Dispatched)
	assert.Equal(t, 1, d.dispatches)
}

func TestDispatchRejectsEndedOrder(t *testing.T) {
	for _, s := range []Status{StatusCanceled, StatusExpired, StatusFailed} {
		t.Run(string(s), func(t *testing.T) {
			a, d, _ := newArranger(s)
			_, err := a.Dispatch(context.Background(), "ord-1", "std")
			var ise *InvalidOrderStateError
			require.True(t, errors.As(err, &ise))
			assert.Equal(t, s, ise.Status)
			assert.Zero(t, d.dispatches)
		})
	}
}

func TestForgetClearsDispatch(t *testing.T) {
	a, d, _ := newArranger(StatusReserved)
	_, err := a.Dispatch(context.Background(), "ord-1", "std")
	require.NoError(t, err)

	a.Forget("ord-1")
	assert.Empty(t, a.Selected("ord-1"))
	_, err = a.Dispatch(context.Background(), "ord-1", "exp")
	require.NoError(t, err)
	assert.Equal(t, 2, d.dispatches)
}
