package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr     string
	Environment  string
	LogLevel     string
	ServiceName  string
	PostgresDSN  string // empty disables the redemption ledger
	RedisAddr    string // empty disables the cross-replica redemption guard
	KafkaBrokers []string
	Upstream     UpstreamConfig
	Checkout     CheckoutConfig
	Redeemer     RedeemerConfig
}

// UpstreamConfig points at the collaborating services.
type UpstreamConfig struct {
	OrdersURL     string
	PromotionsURL string
	WalletURL     string
	DeliveryURL   string
	Timeout       time.Duration
}

type CheckoutConfig struct {
	ReservationTTL time.Duration
	PollRetries    int
	PollInterval   time.Duration
	RedeemTimeout  time.Duration
	SessionIdle    time.Duration
}

type RedeemerConfig struct {
	Group      string
	Workers    int
	Attempts   int           // wallet calls per re-issue
	Interval   time.Duration // first backoff step between them
	SweepEvery time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVICE_NAME", "checkout-api")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("RESERVATION_TTL", "900s")
	v.SetDefault("PAYMENT_POLL_RETRIES", 10)
	v.SetDefault("PAYMENT_POLL_INTERVAL", "3s")
	v.SetDefault("REDEEM_TIMEOUT", "10s")
	v.SetDefault("SESSION_IDLE", "1h")
	v.SetDefault("REDEEMER_GROUP", "checkout-redeemer")
	v.SetDefault("REDEEMER_WORKERS", 4)
	v.SetDefault("REDEEMER_ATTEMPTS", 5)
	v.SetDefault("REDEEMER_INTERVAL", "1s")
	v.SetDefault("REDEEMER_SWEEP_EVERY", "5m")
	v.AutomaticEnv()

	get := func(k string) string { return getenv(v, k) }

	cfg := Config{
		HTTPAddr:     get("HTTP_ADDR"),
		Environment:  get("ENVIRONMENT"),
		LogLevel:     get("LOG_LEVEL"),
		ServiceName:  get("SERVICE_NAME"),
		PostgresDSN:  strings.TrimSpace(get("POSTGRES_DSN")),
		RedisAddr:    strings.TrimSpace(get("REDIS_ADDR")),
		KafkaBrokers: splitCSV(get("KAFKA_BROKERS")),
		Upstream: UpstreamConfig{
			OrdersURL:     strings.TrimSpace(get("ORDERS_URL")),
			PromotionsURL: strings.TrimSpace(get("PROMOTIONS_URL")),
			WalletURL:     strings.TrimSpace(get("WALLET_URL")),
			DeliveryURL:   strings.TrimSpace(get("DELIVERY_URL")),
		},
		Redeemer: RedeemerConfig{Group: get("REDEEMER_GROUP")},
	}

	var err error
	if cfg.Upstream.Timeout, err = duration(get, "UPSTREAM_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.ReservationTTL, err = duration(get, "RESERVATION_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.PollInterval, err = duration(get, "PAYMENT_POLL_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.RedeemTimeout, err = duration(get, "REDEEM_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.SessionIdle, err = duration(get, "SESSION_IDLE"); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.PollRetries, err = positiveInt(get, "PAYMENT_POLL_RETRIES"); err != nil {
		return Config{}, err
	}
	if cfg.Redeemer.Workers, err = positiveInt(get, "REDEEMER_WORKERS"); err != nil {
		return Config{}, err
	}
	if cfg.Redeemer.Attempts, err = positiveInt(get, "REDEEMER_ATTEMPTS"); err != nil {
		return Config{}, err
	}
	if cfg.Redeemer.Interval, err = duration(get, "REDEEMER_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.Redeemer.SweepEvery, err = duration(get, "REDEEMER_SWEEP_EVERY"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks what the API process cannot start without.
func (c Config) Validate() error {
	missing := []string{}
	if c.Upstream.OrdersURL == "" {
		missing = append(missing, "ORDERS_URL")
	}
	if c.Upstream.PromotionsURL == "" {
		missing = append(missing, "PROMOTIONS_URL")
	}
	if c.Upstream.WalletURL == "" {
		missing = append(missing, "WALLET_URL")
	}
	if c.Upstream.DeliveryURL == "" {
		missing = append(missing, "DELIVERY_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// getenv prefers the raw environment, then viper (defaults included).
func getenv(v *viper.Viper, k string) string {
	if val := os.Getenv(k); val != "" {
		return val
	}
	return v.GetString(k)
}

func duration(get func(string) string, k string) (time.Duration, error) {
	d, err := time.ParseDuration(get(k))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", k)
	}
	return d, nil
}

func positiveInt(get func(string) string, k string) (int, error) {
	n, err := strconv.Atoi(get(k))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", k)
	}
	return n, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
