package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type fakeOrders struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]*Order
	creates  []CreateOrderRequest
	gets     int
	cancels  int
	createFn func(CreateOrderRequest) (Order, error)
	// statuses returned by successive Get calls; the last one sticks
	script []Status
	getErr []error
	onGet  func(call int)
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*Order{}}
}

func (f *fakeOrders) Create(_ context.Context, req CreateOrderRequest) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createFn != nil {
		return f.createFn(req)
	}
	f.seq++
	o := Order{
		ID:     fmt.Sprintf("ord-%d", f.seq),
		UnitID: req.UnitID,
		Items:  req.Items,
		Totals: req.Totals,
		Status: StatusReserved,
	}
	f.orders[o.ID] = &o
	return o, nil
}

func (f *fakeOrders) Get(_ context.Context, orderID string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.gets
	f.gets++
	if f.onGet != nil {
		f.onGet(f.gets)
	}
	if i < len(f.getErr) && f.getErr[i] != nil {
		return Order{}, f.getErr[i]
	}
	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, &NotFoundError{Resource: "order", ID: orderID}
	}
	if len(f.script) > 0 {
		if i >= len(f.script) {
			i = len(f.script) - 1
		}
		o.Status = f.script[i]
	}
	return *o, nil
}

func (f *fakeOrders) Cancel(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	o, ok := f.orders[orderID]
	if !ok {
		return &NotFoundError{Resource: "order", ID: orderID}
	}
	o.Status = StatusCanceled
	f.script = nil
	return nil
}

func (f *fakeOrders) put(o Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = &o
}

func (f *fakeOrders) counts() (creates, gets, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), f.gets, f.cancels
}

type fakePromotions struct {
	promos []Promotion
	err    error
	calls  int
}

func (f *fakePromotions) Preview(_ context.Context, _ string, _ []Item) (PricingPreview, error) {
	f.calls++
	if f.err != nil {
		return PricingPreview{}, f.err
	}
	return PricingPreview{Promotions: f.promos}, nil
}

type redeemCall struct {
	OrderID string
	Amount  int64
	At      time.Time
}

type fakeWallet struct {
	mu        sync.Mutex
	balance   int64
	redeemErr error
	redeems   []redeemCall
	// overApply makes the preview claim more than was asked for
	overApply int64
}

func (f *fakeWallet) Balance(_ context.Context, unitID string) (WalletBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return WalletBalance{UnitID: unitID, Balance: f.balance, Currency: "BRL"}, nil
}

func (f *fakeWallet) PreviewRedeem(_ context.Context, _ string, amount, subtotal int64) (CashbackPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	applied := min(amount, f.balance, subtotal) + f.overApply
	return CashbackPreview{RequestedAmount: amount, AppliedAmount: applied, TotalAfterRedeem: subtotal - applied}, nil
}

func (f *fakeWallet) Redeem(_ context.Context, orderID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeems = append(f.redeems, redeemCall{OrderID: orderID, Amount: amount, At: time.Now()})
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.balance -= amount
	return nil
}

func (f *fakeWallet) redeemCalls() []redeemCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redeemCall(nil), f.redeems...)
}

type fakeDelivery struct {
	options    []DeliveryOption
	dispatches int
}

func (f *fakeDelivery) Quote(_ context.Context, _ Address, _ string, _ []Item) ([]DeliveryOption, error) {
	return f.options, nil
}

func (f *fakeDelivery) Dispatch(_ context.Context, orderID, optionID string) (Dispatch, error) {
	f.dispatches++
	return Dispatch{OrderID: orderID, OptionID: optionID, Tracking: "TRK-" + orderID}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		for _, h := range m.Headers {
			if h.Key == "x-event-type" {
				out = append(out, string(h.Value))
			}
		}
	}
	return out
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (g *fakeGuard) Claim(_ context.Context, orderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = map[string]bool{}
	}
	if g.claimed[orderID] {
		return false, nil
	}
	g.claimed[orderID] = true
	return true, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	status map[string]string
}

func (l *fakeLedger) set(orderID, s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == nil {
		l.status = map[string]string{}
	}
	l.status[orderID] = s
}

func (l *fakeLedger) get(orderID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[orderID]
}

func (l *fakeLedger) Begin(_ context.Context, orderID, _ string, _ int64) error {
	l.set(orderID, LedgerPending)
	return nil
}

func (l *fakeLedger) MarkRedeemed(_ context.Context, orderID string) error {
	l.set(orderID, LedgerRedeemed)
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, orderID, _ string) error {
	l.set(orderID, LedgerFailed)
	return nil
}
