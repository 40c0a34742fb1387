package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcherValidatesExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every five minutes", expr: "*/5 * * * *"},
		{name: "daily at six", expr: "0 6 * * *"},
		{name: "descriptor", expr: "@hourly"},
		{name: "empty", expr: "", wantErr: true},
		{name: "too few fields", expr: "* * *", wantErr: true},
		{name: "nonsense", expr: "every day", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(tt.expr, slog.Default())

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, w)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, w)
		})
	}
}

func TestWatcherTicksAndStops(t *testing.T) {
	w, err := NewWatcher("@every 100ms", slog.Default())
	require.NoError(t, err)

	var ticks atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx, func(context.Context) {
		ticks.Add(1)
	}))

	assert.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, 3*time.Second, 20*time.Millisecond)

	w.Stop()

	settled := ticks.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load(), "no ticks after Stop")
}

func TestWatcherStopBeforeStartIsSafe(t *testing.T) {
	w, err := NewWatcher("@hourly", slog.Default())
	require.NoError(t, err)

	w.Stop()
}
