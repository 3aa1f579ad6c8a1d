package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocql/gocql"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("HOLD_DURATION", "")
	t.Setenv("KAFKA_BROKERS", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("Expected memory driver, got %q", cfg.StoreDriver)
	}
	if cfg.HoldDuration != 15*time.Minute {
		t.Errorf("Expected 15m hold, got %s", cfg.HoldDuration)
	}
	if cfg.SweepBatch != 500 {
		t.Errorf("Expected batch 500, got %d", cfg.SweepBatch)
	}
	if cfg.KafkaEnabled() {
		t.Error("Kafka should be disabled without brokers")
	}
	if len(cfg.RetryBackoff) != 3 {
		t.Errorf("Expected 3 backoff steps, got %v", cfg.RetryBackoff)
	}
}

func TestLoadDriverRequirements(t *testing.T) {
	cases := []struct {
		driver string
		env    map[string]string
		ok     bool
	}{
		{"mongo", nil, false},
		{"mongo", map[string]string{"MONGO_URI": "mongodb://localhost:27017"}, true},
		{"postgres", nil, false},
		{"postgres", map[string]string{"POSTGRES_DSN": "postgres://localhost/db"}, true},
		{"cassandra", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", tc.driver)
			t.Setenv("MONGO_URI", "")
			t.Setenv("POSTGRES_DSN", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadReadsDotEnvAndParsesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "HOLD_DURATION=10m\nKAFKA_BROKERS=a:9092, b:9092\nSCYLLA_CONSISTENCY=one\nSWEEP_BATCH=50\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	for _, k := range []string{"HOLD_DURATION", "KAFKA_BROKERS", "SCYLLA_CONSISTENCY", "SWEEP_BATCH", "STORE_DRIVER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HoldDuration != 10*time.Minute {
		t.Errorf("Expected 10m hold, got %s", cfg.HoldDuration)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("Expected trimmed brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.ScyllaConsistency != gocql.One {
		t.Errorf("Expected consistency one, got %v", cfg.ScyllaConsistency)
	}
	if cfg.SweepBatch != 50 {
		t.Errorf("Expected batch 50, got %d", cfg.SweepBatch)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HOLD_DURATION", "soon")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected duration error")
	}
}
