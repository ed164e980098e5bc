package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(map[string]string{"BOOKSHOP_JWT_SECRET": "secret"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.SeedOnStart)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 3, cfg.OutboxMaxAttempts)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	cfg, err := LoadConfig(map[string]string{
		"BOOKSHOP_JWT_SECRET":           "secret",
		"BOOKSHOP_HTTP_ADDR":            "127.0.0.1:18080",
		"BOOKSHOP_STORAGE_DRIVER":       " Postgres ",
		"BOOKSHOP_POSTGRES_DSN":         "postgres://bookshop@localhost/bookshop",
		"BOOKSHOP_KAFKA_BROKERS":        "kafka-1:9092, ,kafka-2:9092",
		"BOOKSHOP_OUTBOX_POLL_INTERVAL": "250ms",
		"BOOKSHOP_SEED_ON_START":        "false",
		"BOOKSHOP_OTLP_SAMPLE_RATIO":    "0.25",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18080", cfg.HTTPAddr)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.False(t, cfg.SeedOnStart)
	assert.InDelta(t, 0.25, cfg.OTLPSampleRatio, 1e-9)
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		message string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			message: "BOOKSHOP_JWT_SECRET is required",
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"BOOKSHOP_JWT_SECRET": "s", "BOOKSHOP_STORAGE_DRIVER": "postgres"},
			message: "BOOKSHOP_POSTGRES_DSN is required",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"BOOKSHOP_JWT_SECRET": "s", "BOOKSHOP_STORAGE_DRIVER": "sqlite"},
			message: `unsupported storage driver "sqlite"`,
		},
		{
			name:    "non-positive batch",
			env:     map[string]string{"BOOKSHOP_JWT_SECRET": "s", "BOOKSHOP_OUTBOX_BATCH_SIZE": "0"},
			message: "outbox poll interval",
		},
		{
			name:    "sample ratio out of range",
			env:     map[string]string{"BOOKSHOP_JWT_SECRET": "s", "BOOKSHOP_OTLP_SAMPLE_RATIO": "1.5"},
			message: "BOOKSHOP_OTLP_SAMPLE_RATIO",
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"BOOKSHOP_JWT_SECRET": "s", "BOOKSHOP_IDEMPOTENCY_TTL": "forever"},
			message: "parse env",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(tc.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(Config{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, "debug", logger.GetLevel().String())

	logger = NewLogger(Config{LogLevel: "nonsense"})
	assert.Equal(t, "info", logger.GetLevel().String())
}
