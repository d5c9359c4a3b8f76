package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/config"
	"github.com/ariefcatur/storefront-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/logging"
	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/ariefcatur/storefront-checkout/internal/postgres"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/ariefcatur/storefront-checkout/internal/upstream"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewCheckout(prometheus.DefaultRegisterer, "api")

	// Upstream services
	orders := &upstream.OrderClient{C: upstream.NewClient("orders", cfg.Upstream.OrdersURL, cfg.Upstream.Timeout, logger)}
	promos := &upstream.PromotionClient{C: upstream.NewClient("promotions", cfg.Upstream.PromotionsURL, cfg.Upstream.Timeout, logger)}
	wallet := &upstream.WalletClient{C: upstream.NewClient("wallet", cfg.Upstream.WalletURL, cfg.Upstream.Timeout, logger)}
	delivery := &upstream.DeliveryClient{C: upstream.NewClient("delivery", cfg.Upstream.DeliveryURL, cfg.Upstream.Timeout, logger)}

	poll := checkout.PollOptions{Retries: cfg.Checkout.PollRetries, Interval: cfg.Checkout.PollInterval}
	deps := checkout.Deps{
		Pricing:       &checkout.PricingEngine{Promotions: promos, Wallet: wallet, Logger: logger},
		Reservations:  &checkout.ReservationManager{Orders: orders, Logger: logger, Metrics: m},
		Delivery:      &checkout.DeliveryArranger{Delivery: delivery, Orders: orders, Logger: logger},
		Watcher:       &checkout.PaymentWatcher{Orders: orders, Logger: logger, Metrics: m},
		Wallet:        wallet,
		Poll:          poll,
		RedeemTimeout: cfg.Checkout.RedeemTimeout,
		ServiceName:   cfg.ServiceName,
		Logger:        logger,
		Metrics:       m,
	}

	// DB (optional): redemption ledger
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		ledger := &checkout.RedemptionRepo{DB: db}
		if err := ledger.EnsureSchema(ctx); err != nil {
			logger.Fatal("ledger schema", zap.Error(err))
		}
		deps.Ledger = ledger
	}

	// Redis (optional): cross-replica redemption guard
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		deps.Guard = &redisx.RedemptionGuard{Redis: rdb, Claimant: cfg.ServiceName}
	}

	// Kafka (optional): checkout events and redemption alerts
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		events := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicCheckoutEvents, 1024, logger)
		alerts := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicCashbackRedeemFailed, 256, logger)
		events.Start()
		alerts.Start()
		deps.Events, deps.Alerts = events, alerts
		producers = append(producers, events, alerts)
	}

	sessions := &httpx.Sessions{Deps: deps, Idle: cfg.Checkout.SessionIdle}
	go sessions.RunJanitor(ctx, time.Minute)

	// a confirm request lives for the whole poll window
	timeout := poll.Window() + cfg.Checkout.RedeemTimeout + 2*cfg.Upstream.Timeout
	router := httpx.NewRouter(logger, m, timeout)
	ch := &httpx.CheckoutHandler{
		Sessions:   sessions,
		Logger:     logger,
		DefaultTTL: cfg.Checkout.ReservationTTL,
		Poll:       poll,
	}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), timeout)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
}
