package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), map[string]string{"BOOKSHOP_STORAGE_DRIVER": "sqlite"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "BOOKSHOP_JWT_SECRET is required")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := run(ctx, map[string]string{
		"BOOKSHOP_JWT_SECRET":   "secret",
		"BOOKSHOP_HTTP_ADDR":    "127.0.0.1:0",
		"BOOKSHOP_GRPC_ADDR":    "127.0.0.1:0",
		"BOOKSHOP_METRICS_ADDR": "127.0.0.1:0",
		"BOOKSHOP_LOG_LEVEL":    "error",
	})
	require.NoError(t, err)
}
