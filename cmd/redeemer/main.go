package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/config"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/logging"
	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/ariefcatur/storefront-checkout/internal/postgres"
	"github.com/ariefcatur/storefront-checkout/internal/redeemer"
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
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// without the ledger a give-up would only live in the log
	if cfg.Upstream.WalletURL == "" || len(cfg.KafkaBrokers) == 0 || cfg.PostgresDSN == "" {
		logger.Fatal("redeemer needs WALLET_URL, KAFKA_BROKERS and POSTGRES_DSN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &redeemer.Service{
		Wallet:      &upstream.WalletClient{C: upstream.NewClient("wallet", cfg.Upstream.WalletURL, cfg.Upstream.Timeout, logger)},
		Logger:      logger,
		Metrics:     metrics.NewCheckout(prometheus.DefaultRegisterer, "redeemer"),
		ServiceName: cfg.ServiceName + "-redeemer",
		Attempts:    cfg.Redeemer.Attempts,
		Interval:    cfg.Redeemer.Interval,
	}

	// DB: ledger updates and periodic sweep of FAILED rows
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	ledger := &checkout.RedemptionRepo{DB: db}
	if err := ledger.EnsureSchema(ctx); err != nil {
		logger.Fatal("ledger schema", zap.Error(err))
	}
	svc.Ledger = ledger
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		svc.RunSweeper(ctx, cfg.Redeemer.SweepEvery, 100)
	}()

	// Redis (optional): event dedup
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		svc.Redis = rdb
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Redeemer.Group, checkout.TopicCashbackRedeemFailed, cfg.Redeemer.Workers, logger)
	consDone := make(chan struct{})
	go func() {
		defer close(consDone)
		logger.Info("redeemer consumer started",
			zap.String("group", cfg.Redeemer.Group),
			zap.String("topic", checkout.TopicCashbackRedeemFailed),
			zap.Int("workers", cfg.Redeemer.Workers),
		)
		if err := cons.Start(ctx, svc.HandleRedeemFailed); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down redeemer...")
	cancel()
	// in-flight handlers finish before the db and redis clients close
	<-consDone
	<-sweepDone
}
