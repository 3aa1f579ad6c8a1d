package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config aggregates settings for both the API and the worker process.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	StoreDriver string
	MongoURI    string
	MongoDB     string
	PostgresDSN string
	RedisAddr   string

	KafkaBrokers            []string
	KafkaTopicPrefix        string
	KafkaNotificationsTopic string
	KafkaGroupID            string

	ScyllaHosts             []string
	ScyllaKeyspace          string
	ScyllaConsistency       gocql.Consistency
	ScyllaTimeout           time.Duration
	ScyllaUsername          string
	ScyllaPassword          string
	ScyllaReplicationFactor int

	HoldDuration       time.Duration
	SweepInterval      time.Duration
	SweepBatch         int
	SweepLockTTL       time.Duration
	SweepToken         string
	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string

	ListingsFixtures string
}

// Load reads .env files when present and then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		Env:                     getEnv("APP_ENV", "dev"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:                getEnv("GRPC_HEALTH_ADDR", ":9090"),
		StoreDriver:             strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		MongoURI:                os.Getenv("MONGO_URI"),
		MongoDB:                 getEnv("MONGO_DB", "reservations"),
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		KafkaBrokers:            splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:        getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaNotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "payments.notifications.v1"),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "reservations-worker"),
		ScyllaHosts:             splitAndTrim(os.Getenv("SCYLLA_HOSTS")),
		ScyllaKeyspace:          getEnv("SCYLLA_KEYSPACE", "rentme_messaging"),
		ScyllaUsername:          os.Getenv("SCYLLA_USERNAME"),
		ScyllaPassword:          os.Getenv("SCYLLA_PASSWORD"),
		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:      getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/reservations/{RESERVATION_ID}?paid=1"),
		CheckoutCancelURL:       getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/reservations/{RESERVATION_ID}"),
		Currency:                strings.ToLower(getEnv("CURRENCY", "usd")),
		ListingsFixtures:        os.Getenv("LISTINGS_FIXTURES"),
		SweepToken:              os.Getenv("SWEEP_TOKEN"),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"HOLD_DURATION", 15 * time.Minute, &cfg.HoldDuration},
		{"SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"SWEEP_LOCK_TTL", 50 * time.Second, &cfg.SweepLockTTL},
		{"IDEMP_TTL", 24 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"SCYLLA_TIMEOUT", 5 * time.Second, &cfg.ScyllaTimeout},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}
	if cfg.HoldDuration <= 0 {
		return Config{}, fmt.Errorf("HOLD_DURATION must be positive")
	}

	batch, err := parseIntEnv("SWEEP_BATCH", 500)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepBatch = batch

	rf, err := parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1)
	if err != nil {
		return Config{}, err
	}
	cfg.ScyllaReplicationFactor = rf

	consistency, err := parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum"))
	if err != nil {
		return Config{}, err
	}
	cfg.ScyllaConsistency = consistency

	for _, raw := range strings.Split(getEnv("RETRY_BACKOFF", "1s,5s,30s"), ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate requires connection settings only for the selected driver.
func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_BATCH must be positive")
	}
	return nil
}

// ScyllaEnabled reports whether the messaging store was configured.
func (c Config) ScyllaEnabled() bool { return len(c.ScyllaHosts) > 0 }

// KafkaEnabled reports whether brokers were configured.
func (c Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// StripeEnabled reports whether the payment provider is configured.
func (c Config) StripeEnabled() bool { return c.StripeSecretKey != "" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
