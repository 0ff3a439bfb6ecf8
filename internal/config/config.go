package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PGDSN       string
	MongoURI    string
	RedisAddr   string
	RabbitURL   string
	HoldTTL     time.Duration
	SweepEvery  time.Duration
	GracePeriod time.Duration

	CashfreeAppID     string
	CashfreeSecretKey string
	CashfreeBaseURL   string
	PaymentReturnURL  string
	PaymentNotifyURL  string

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		PGDSN:       os.Getenv("PG_DSN"),
		MongoURI:    os.Getenv("MONGO_URI"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RabbitURL:   os.Getenv("RABBIT_URL"),
		HoldTTL:     durationEnv("HOLD_TTL", 5*time.Minute),
		SweepEvery:  durationEnv("SWEEP_INTERVAL", time.Minute),
		GracePeriod: durationEnv("LEDGER_GRACE_PERIOD", 10*time.Minute),

		CashfreeAppID:     os.Getenv("CASHFREE_APP_ID"),
		CashfreeSecretKey: os.Getenv("CASHFREE_SECRET_KEY"),
		CashfreeBaseURL:   stringEnv("CASHFREE_BASE_URL", "https://sandbox.cashfree.com/pg"),
		PaymentReturnURL:  os.Getenv("PAYMENT_RETURN_URL"),
		PaymentNotifyURL:  os.Getenv("PAYMENT_NOTIFY_URL"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return fallback
	}
	return d
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
