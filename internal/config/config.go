package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueMemory = "memory"
	QueueKafka  = "kafka"
)

// Config holds all runtime configuration for the brokerage service.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	StoreDriver string
	DatabaseURL string
	AutoMigrate bool

	QueueDriver       string
	KafkaBrokers      []string
	KafkaOrderTopic   string
	KafkaOrderGroupID string
	// KafkaEventTopic enables publishing order and trade events to Kafka
	// when set.
	KafkaEventTopic string
	WorkerCount     int
	QueueBuffer     int
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	FeeRate        decimal.Decimal
	WebhookTimeout time.Duration
	SweepInterval  time.Duration
	StaleOrderAge  time.Duration

	// OrderRateLimit is order submissions per second per account. Zero
	// disables limiting.
	OrderRateLimit float64
	OrderRateBurst int
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", cfg.Port)
	}

	cfg.LogLevel = getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout, 5 * time.Second},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout, 10 * time.Second},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout, 60 * time.Second},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second},
		{"RETRY_BASE_DELAY", &cfg.RetryBaseDelay, 100 * time.Millisecond},
		{"RETRY_MAX_DELAY", &cfg.RetryMaxDelay, 5 * time.Second},
		{"WEBHOOK_TIMEOUT", &cfg.WebhookTimeout, 5 * time.Second},
		{"SWEEP_INTERVAL", &cfg.SweepInterval, 30 * time.Second},
		{"STALE_ORDER_AGE", &cfg.StaleOrderAge, time.Minute},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if *d.dst <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("invalid RETRY_MAX_DELAY: %v is below RETRY_BASE_DELAY %v", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}

	ints := []struct {
		key string
		dst *int
		def int
		min int
	}{
		{"WORKER_COUNT", &cfg.WorkerCount, 4, 1},
		{"QUEUE_BUFFER", &cfg.QueueBuffer, 1024, 1},
		{"MAX_ATTEMPTS", &cfg.MaxAttempts, 5, 1},
		{"ORDER_RATE_BURST", &cfg.OrderRateBurst, 20, 1},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.key, i.def); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		if *i.dst < i.min {
			return nil, fmt.Errorf("invalid %s: must be >= %d", i.key, i.min)
		}
	}

	cfg.StoreDriver = getStr("STORE_DRIVER", StoreMemory)
	cfg.DatabaseURL = getStr("DATABASE_URL", "")
	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q, must be one of: memory, postgres", cfg.StoreDriver)
	}
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", true); err != nil {
		return nil, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
	}

	cfg.QueueDriver = getStr("QUEUE_DRIVER", QueueMemory)
	cfg.KafkaBrokers = getList("KAFKA_BROKERS")
	cfg.KafkaOrderTopic = getStr("KAFKA_ORDER_TOPIC", "brokerage.orders")
	cfg.KafkaOrderGroupID = getStr("KAFKA_ORDER_GROUP_ID", "brokerage-engine")
	cfg.KafkaEventTopic = getStr("KAFKA_EVENT_TOPIC", "")
	switch cfg.QueueDriver {
	case QueueMemory:
	case QueueKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when QUEUE_DRIVER=kafka")
		}
	default:
		return nil, fmt.Errorf("invalid QUEUE_DRIVER: %q, must be one of: memory, kafka", cfg.QueueDriver)
	}
	if cfg.KafkaEventTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_EVENT_TOPIC is set")
	}

	feeRate := getStr("FEE_RATE", "0.001")
	if cfg.FeeRate, err = decimal.NewFromString(feeRate); err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE: %w", err)
	}
	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid FEE_RATE: %s, must be in [0, 1)", feeRate)
	}

	if cfg.OrderRateLimit, err = getFloat("ORDER_RATE_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("invalid ORDER_RATE_LIMIT: %w", err)
	}
	if cfg.OrderRateLimit < 0 {
		return nil, errors.New("invalid ORDER_RATE_LIMIT: must be >= 0")
	}

	return &cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
