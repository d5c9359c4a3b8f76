package checkout

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DeliveryArranger quotes shipping options and binds exactly one of them to
// an order. Voiding a dispatch is not supported.
type DeliveryArranger struct {
	Delivery DeliveryService
	Orders   OrderService
	Logger   *zap.Logger

	mu         sync.Mutex
	selected   map[string]string
	dispatched map[string]Dispatch
}

func (a *DeliveryArranger) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// Quote returns an empty, non-nil slice when no carrier serves the address.
func (a *DeliveryArranger) Quote(ctx context.Context, address Address, unitID string, items []Item) ([]DeliveryOption, error) {
	if unitID == "" {
		return nil, ErrNoUnit
	}
	opts, err := a.Delivery.Quote(ctx, address, unitID, items)
	if err != nil {
		return nil, fmt.Errorf("delivery quote: %w", err)
	}
	if opts == nil {
		opts = []DeliveryOption{}
	}
	return opts, nil
}

// Select remembers optionID as the choice for orderID.
func (a *DeliveryArranger) Select(orderID, optionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		a.selected = map[string]string{}
	}
	a.selected[orderID] = optionID
}

func (a *DeliveryArranger) Selected(orderID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected[orderID]
}

// Dispatch binds optionID (or the previously selected option) to orderID.
// Repeating a dispatch with the same option returns the first tracking.
func (a *DeliveryArranger) Dispatch(ctx context.Context, orderID, optionID string) (Dispatch, error) {
	if orderID == "" {
		return Dispatch{}, &InvalidOrderStateError{Op: "dispatch"}
	}
	if optionID == "" {
		optionID = a.Selected(orderID)
	}
	if optionID == "" {
		return Dispatch{}, &NoSelectionError{OrderID: orderID}
	}

	a.mu.Lock()
	prev, ok := a.dispatched[orderID]
	a.mu.Unlock()
	if ok {
		if prev.OptionID != optionID {
			return Dispatch{}, &DispatchConflictError{OrderID: orderID, Dispatched: prev.OptionID, Requested: optionID}
		}
		return prev, nil
	}

	o, err := a.Orders.Get(ctx, orderID)
	if err != nil {
		return Dispatch{}, err
	}
	if !o.Status.Dispatchable() {
		return Dispatch{}, &InvalidOrderStateError{OrderID: orderID, Status: o.Status, Op: "dispatch"}
	}

	d, err := a.Delivery.Dispatch(ctx, orderID, optionID)
	if err != nil {
		return Dispatch{}, fmt.Errorf("delivery dispatch: %w", err)
	}
	d.OrderID, d.OptionID = orderID, optionID

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dispatched == nil {
		a.dispatched = map[string]Dispatch{}
	}
	if prev, ok := a.dispatched[orderID]; ok && prev.OptionID != optionID {
		// lost a race against a concurrent dispatch with another option
		return Dispatch{}, &DispatchConflictError{OrderID: orderID, Dispatched: prev.OptionID, Requested: optionID}
	}
	a.dispatched[orderID] = d
	if a.selected == nil {
		a.selected = map[string]string{}
	}
	a.selected[orderID] = optionID
	a.logger().Info("delivery dispatched",
		zap.String("order_id", orderID),
		zap.String("option_id", optionID),
		zap.String("tracking", d.Tracking),
	)
	return d, nil
}

// Forget drops local selection and dispatch state for orderID.
func (a *DeliveryArranger) Forget(orderID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.selected, orderID)
	delete(a.dispatched, orderID)
}
