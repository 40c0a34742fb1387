//go:build integration
// +build integration

package history_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/quantora/simrun/pkg/history"
	"github.com/quantora/simrun/pkg/run"
)

func setupRedisStore(t *testing.T, limit int) (*history.RedisStore, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := history.NewRedisStore(ctx, endpoint, "", 0, limit, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
		require.NoError(t, container.Terminate(ctx))
		cancel()
	})

	return store, ctx
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, ctx := setupRedisStore(t, 5)

	for i := 1; i <= 3; i++ {
		summary := run.Summary{
			RunID:         "run-" + string(rune('0'+i)),
			Symbol:        "NVDA",
			Horizon:       30,
			Paths:         2000,
			FinishedAt:    time.Now().UTC().Truncate(time.Second),
			ProbabilityUp: 0.6,
			Terminal:      104,
		}
		require.NoError(t, store.Append(ctx, summary))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "run-3", entries[0].RunID)
	assert.Equal(t, "run-1", entries[2].RunID)
}

func TestRedisStoreTrimsBeyondLimit(t *testing.T) {
	store, ctx := setupRedisStore(t, 2)

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.Append(ctx, run.Summary{
			RunID:  "run-" + string(rune('0'+i)),
			Symbol: "NVDA",
		}))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "run-4", entries[0].RunID)
	assert.Equal(t, "run-3", entries[1].RunID)
}
