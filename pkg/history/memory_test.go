package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantora/simrun/pkg/run"
)

func summaryForRun(i int) run.Summary {
	return run.Summary{
		RunID:         fmt.Sprintf("run-%d", i),
		Symbol:        "NVDA",
		Horizon:       30,
		Paths:         2000,
		FinishedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		ProbabilityUp: 0.6,
		Terminal:      104,
	}
}

func TestMemoryStoreMostRecentFirst(t *testing.T) {
	store := NewMemoryStore(5)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Append(ctx, summaryForRun(i)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "run-3", entries[0].RunID)
	assert.Equal(t, "run-2", entries[1].RunID)
	assert.Equal(t, "run-1", entries[2].RunID)
}

func TestMemoryStoreEvictsBeyondLimit(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(ctx, summaryForRun(i)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "run-5", entries[0].RunID)
	assert.Equal(t, "run-3", entries[2].RunID, "the oldest entries fall off")
}

func TestMemoryStoreListIsASnapshot(t *testing.T) {
	store := NewMemoryStore(5)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, summaryForRun(1)))

	entries, err := store.List(ctx)
	require.NoError(t, err)

	entries[0].RunID = "mutated"

	again, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", again[0].RunID)
}

func TestMemoryStoreZeroLimitFallsBackToDefault(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	for i := 1; i <= DefaultLimit+5; i++ {
		require.NoError(t, store.Append(ctx, summaryForRun(i)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLimit)
}
