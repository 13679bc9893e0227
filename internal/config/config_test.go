package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"PORT", "LOG_LEVEL", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT", "STORE_DRIVER", "DATABASE_URL", "AUTO_MIGRATE",
	"QUEUE_DRIVER", "KAFKA_BROKERS", "KAFKA_ORDER_TOPIC", "KAFKA_ORDER_GROUP_ID",
	"KAFKA_EVENT_TOPIC", "WORKER_COUNT", "QUEUE_BUFFER", "MAX_ATTEMPTS",
	"RETRY_BASE_DELAY", "RETRY_MAX_DELAY", "FEE_RATE", "WEBHOOK_TIMEOUT",
	"SWEEP_INTERVAL", "STALE_ORDER_AGE", "ORDER_RATE_LIMIT", "ORDER_RATE_BURST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StoreDriver != StoreMemory || cfg.QueueDriver != QueueMemory {
		t.Errorf("drivers = %s/%s, want memory/memory", cfg.StoreDriver, cfg.QueueDriver)
	}
	if !cfg.AutoMigrate {
		t.Error("AutoMigrate should default to true")
	}
	if cfg.FeeRate.String() != "0.001" {
		t.Errorf("FeeRate = %s, want 0.001", cfg.FeeRate)
	}
	if cfg.WorkerCount != 4 || cfg.QueueBuffer != 1024 || cfg.MaxAttempts != 5 {
		t.Errorf("queue sizing = %d/%d/%d", cfg.WorkerCount, cfg.QueueBuffer, cfg.MaxAttempts)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.StaleOrderAge != time.Minute {
		t.Errorf("sweeper = %v/%v", cfg.SweepInterval, cfg.StaleOrderAge)
	}
	if cfg.OrderRateLimit != 10 || cfg.OrderRateBurst != 20 {
		t.Errorf("rate limit = %v/%d", cfg.OrderRateLimit, cfg.OrderRateBurst)
	}
	if cfg.KafkaBrokers != nil || cfg.KafkaEventTopic != "" {
		t.Errorf("kafka should be unset, got %v %q", cfg.KafkaBrokers, cfg.KafkaEventTopic)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://app@db/brokerage")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("QUEUE_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_EVENT_TOPIC", "brokerage.events")
	t.Setenv("FEE_RATE", "0.0025")
	t.Setenv("RETRY_BASE_DELAY", "1s")
	t.Setenv("RETRY_MAX_DELAY", "1m")
	t.Setenv("ORDER_RATE_LIMIT", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 || cfg.LogLevel != "debug" {
		t.Errorf("Port/LogLevel = %d/%s", cfg.Port, cfg.LogLevel)
	}
	if cfg.StoreDriver != StorePostgres || cfg.AutoMigrate {
		t.Errorf("store = %s migrate=%v", cfg.StoreDriver, cfg.AutoMigrate)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.KafkaOrderTopic != "brokerage.orders" {
		t.Errorf("KafkaOrderTopic = %q", cfg.KafkaOrderTopic)
	}
	if cfg.FeeRate.String() != "0.0025" {
		t.Errorf("FeeRate = %s", cfg.FeeRate)
	}
	if cfg.RetryMaxDelay != time.Minute || cfg.OrderRateLimit != 0.5 {
		t.Errorf("RetryMaxDelay/OrderRateLimit = %v/%v", cfg.RetryMaxDelay, cfg.OrderRateLimit)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"PORT": "not-a-number"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"duration", map[string]string{"SWEEP_INTERVAL": "soon"}},
		{"zero duration", map[string]string{"STALE_ORDER_AGE": "0s"}},
		{"retry delays inverted", map[string]string{"RETRY_BASE_DELAY": "10s", "RETRY_MAX_DELAY": "1s"}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
		{"store driver", map[string]string{"STORE_DRIVER": "mysql"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"auto migrate", map[string]string{"AUTO_MIGRATE": "sometimes"}},
		{"queue driver", map[string]string{"QUEUE_DRIVER": "redis"}},
		{"kafka without brokers", map[string]string{"QUEUE_DRIVER": "kafka"}},
		{"event topic without brokers", map[string]string{"KAFKA_EVENT_TOPIC": "events"}},
		{"fee rate", map[string]string{"FEE_RATE": "a lot"}},
		{"negative fee rate", map[string]string{"FEE_RATE": "-0.01"}},
		{"fee rate of one", map[string]string{"FEE_RATE": "1"}},
		{"negative rate limit", map[string]string{"ORDER_RATE_LIMIT": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", tt.env)
			}
		})
	}
}

func TestLoadFile_DotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "PORT=7070\nFEE_RATE=0.002\n# comment\nLOG_LEVEL=warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 || cfg.FeeRate.String() != "0.002" {
		t.Errorf("file values not applied: port=%d fee=%s", cfg.Port, cfg.FeeRate)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("environment should win over the file, got LogLevel=%q", cfg.LogLevel)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing dotenv file should be ignored, got %v", err)
	}
}
