package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	DefaultPollRetries  = 10
	DefaultPollInterval = 3 * time.Second
)

type PollOptions struct {
	Retries  int
	Interval time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Retries <= 0 {
		o.Retries = DefaultPollRetries
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	return o
}

// Window is the nominal time the watcher waits before giving up.
func (o PollOptions) Window() time.Duration {
	o = o.withDefaults()
	return time.Duration(o.Retries-1) * o.Interval
}

// PaymentWatcher polls an order until it is paid. It is the only blocking
// operation of the checkout flow and honors ctx cancellation between polls.
type PaymentWatcher struct {
	Orders  OrderService
	Logger  *zap.Logger
	Metrics *metrics.Checkout
}

func (w *PaymentWatcher) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// WaitForPaid returns the order the first time it is observed paid. A
// canceled, expired or failed order stops polling with OrderTerminalError;
// an unknown order stops with NotFoundError. After opts.Retries polls without
// payment it fails with TimeoutError. Transient fetch errors consume a poll.
func (w *PaymentWatcher) WaitForPaid(ctx context.Context, orderID string, opts PollOptions) (Order, error) {
	opts = opts.withDefaults()
	if orderID == "" {
		return Order{}, &InvalidOrderStateError{Op: "wait for payment"}
	}
	log := w.logger().With(zap.String("order_id", orderID))

	var (
		attempts int
		lastErr  error
		stop     error
	)
	poll := func() (Order, error) {
		if err := ctx.Err(); err != nil {
			stop = err
			return Order{}, backoff.Permanent(err)
		}
		attempts++
		o, err := w.Orders.Get(ctx, orderID)
		if err != nil {
			var nf *NotFoundError
			switch {
			case errors.As(err, &nf):
				w.Metrics.Poll("not_found")
				stop = err
				return Order{}, backoff.Permanent(err)
			case ctx.Err() != nil:
				stop = ctx.Err()
				return Order{}, backoff.Permanent(stop)
			}
			w.Metrics.Poll("error")
			lastErr = err
			log.Warn("payment poll failed", zap.Int("attempt", attempts), zap.Error(err))
			return Order{}, err
		}
		switch {
		case o.Status == StatusPaid:
			w.Metrics.Poll("paid")
			return o, nil
		case o.Status.Negative():
			w.Metrics.Poll("terminal")
			stop = &OrderTerminalError{OrderID: orderID, Status: o.Status}
			return Order{}, backoff.Permanent(stop)
		}
		w.Metrics.Poll("pending")
		lastErr = nil
		return Order{}, errNotPaidYet
	}

	o, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Interval)),
		backoff.WithMaxTries(uint(opts.Retries)),
		backoff.WithMaxElapsedTime(time.Duration(opts.Retries)*(opts.Interval+time.Minute)),
	)
	if err == nil {
		log.Info("payment confirmed", zap.Int("attempts", attempts))
		return o, nil
	}
	if stop != nil {
		return Order{}, stop
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Order{}, fmt.Errorf("wait for payment of %s: %w", orderID, ctxErr)
	}
	log.Info("payment not confirmed", zap.Int("attempts", attempts))
	return Order{}, &TimeoutError{OrderID: orderID, Attempts: attempts, Window: opts.Window(), Last: lastErr}
}

var errNotPaidYet = errors.New("order not paid yet")
