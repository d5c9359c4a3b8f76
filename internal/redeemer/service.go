package redeemer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// errUnrecorded marks a failed re-issue that no FAILED ledger row covers.
var errUnrecorded = errors.New("failure not recorded in ledger")

type Ledger interface {
	checkout.RedemptionLedger
	ListFailed(ctx context.Context, limit int) ([]checkout.RedemptionRecord, error)
}

// Service re-issues cashback redemptions that failed after payment. The
// wallet applies a redemption once per order, so re-issuing is safe.
type Service struct {
	Wallet      checkout.WalletService
	Ledger      Ledger        // optional
	Redis       redis.Cmdable // optional, event dedup
	Logger      *zap.Logger
	Metrics     *metrics.Checkout
	ServiceName string
	Attempts    int
	Interval    time.Duration
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// HandleRedeemFailed is installed as the consumer handler of
// checkout.TopicCashbackRedeemFailed. A re-issue that keeps failing is
// acknowledged once its FAILED ledger row is written; the sweep owns it from
// there. Without that row the error is returned and the offset stays put.
func (s *Service) HandleRedeemFailed(ctx context.Context, m kafkago.Message) error {
	ev, p, ok, err := kafkax.DecodeEvent[checkout.CashbackRedeemFailedPayload](m.Value, checkout.EventCashbackRedeemFailed)
	if err != nil {
		s.logger().Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	log := s.logger().With(zap.String("event_id", ev.EventID), zap.String("order_id", p.OrderID))
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, ev.EventID)
	if s.Redis != nil {
		seen, err := redisx.Exists(ctx, s.Redis, dkey)
		if err != nil {
			log.Warn("dedup lookup failed, re-issuing anyway", zap.Error(err))
		}
		if seen {
			return nil
		}
	}
	if err := s.Reissue(ctx, p.OrderID, p.UnitID, p.Amount); err != nil {
		if errors.Is(err, errUnrecorded) {
			return err
		}
		log.Warn("re-issue failed, left to the ledger sweep", zap.Error(err))
		return nil
	}
	if s.Redis != nil {
		if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	return nil
}

// Reissue retries the wallet redemption a bounded number of times and
// records the outcome in the ledger. A failure the ledger could not record
// wraps errUnrecorded.
func (s *Service) Reissue(ctx context.Context, orderID, unitID string, amount int64) error {
	log := s.logger().With(zap.String("order_id", orderID), zap.Int64("amount", amount))
	if orderID == "" || amount <= 0 {
		log.Warn("ignoring redemption without order or amount")
		return nil
	}
	if s.Ledger != nil {
		if err := s.Ledger.Begin(ctx, orderID, unitID, amount); err != nil {
			log.Warn("ledger begin failed", zap.Error(err))
		}
	}

	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.Wallet.Redeem(ctx, orderID, amount)
		if err != nil {
			log.Warn("redemption re-issue failed", zap.Error(err))
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))

	if err != nil {
		s.Metrics.Redemption("reissue_failed")
		log.Error("CASHBACK REDEMPTION STILL FAILING", zap.Error(err))
		if s.Ledger == nil {
			return fmt.Errorf("reissue redemption for %s: %w", orderID, errors.Join(err, errUnrecorded))
		}
		if lerr := s.Ledger.MarkFailed(context.WithoutCancel(ctx), orderID, err.Error()); lerr != nil {
			log.Error("ledger mark failed failed", zap.Error(lerr))
			return fmt.Errorf("reissue redemption for %s: %w", orderID, errors.Join(err, errUnrecorded))
		}
		return fmt.Errorf("reissue redemption for %s: %w", orderID, err)
	}

	s.Metrics.Redemption("reissued")
	if s.Ledger != nil {
		if err := s.Ledger.MarkRedeemed(ctx, orderID); err != nil {
			log.Warn("ledger mark redeemed failed", zap.Error(err))
		}
	}
	log.Info("cashback redemption re-issued")
	return nil
}

// Sweep re-issues up to limit FAILED ledger rows and returns how many
// succeeded.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	if s.Ledger == nil {
		return 0, nil
	}
	recs, err := s.Ledger.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}
	ok := 0
	for _, r := range recs {
		if ctx.Err() != nil {
			return ok, ctx.Err()
		}
		if err := s.Reissue(ctx, r.OrderID, r.UnitID, r.Amount); err == nil {
			ok++
		}
	}
	return ok, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration, limit int) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx, limit)
			if err != nil && ctx.Err() == nil {
				s.logger().Warn("ledger sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger().Info("ledger sweep re-issued redemptions", zap.Int("count", n))
			}
		}
	}
}
