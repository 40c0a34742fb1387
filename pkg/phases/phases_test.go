package phases

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
	"github.com/quantora/simrun/pkg/run"
)

func newExecutor(t *testing.T, serverURL string) (*Executor, *emitter.Emitter) {
	t.Helper()

	em := emitter.New(emitter.WithInterval(0))
	t.Cleanup(em.Close)

	c := client.New(serverURL, "test-key")

	return NewExecutor(c, em, slog.Default()), em
}

func TestTrainSuccess(t *testing.T) {
	var gotBody trainRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	assert.True(t, e.Train(context.Background(), "NVDA", 365))
	assert.Equal(t, trainRequest{Symbol: "NVDA", LookbackDays: 365}, gotBody)
	assert.Contains(t, em.Lines(), "Model trained for NVDA (365d lookback)")
}

func TestTrainServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("db down"))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	assert.False(t, e.Train(context.Background(), "NVDA", 365))

	joined := strings.Join(em.Lines(), "\n")
	assert.Contains(t, joined, "db down")
}

func TestTrainHTMLMisroute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<!doctype html><html><body>welcome</body></html>"))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	assert.False(t, e.Train(context.Background(), "NVDA", 365))

	joined := strings.Join(em.Lines(), "\n")
	assert.Contains(t, joined, "check the API base URL")
}

func TestPredictRejectsBadHorizonLocally(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	for _, horizon := range []int{0, -1, 366, 1000} {
		assert.False(t, e.Predict(context.Background(), "NVDA", horizon), "horizon %d", horizon)
	}

	assert.EqualValues(t, 0, calls.Load(), "local validation failures must not reach the network")
	assert.Contains(t, strings.Join(em.Lines(), "\n"), "between 1 and 365 days")
}

func TestPredictSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol":"NVDA","prob_up":0.63}`))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	assert.True(t, e.Predict(context.Background(), "NVDA", 30))
	assert.Contains(t, em.Lines(), "Next-step probability for NVDA: 0.63")
}

func TestKickoffReturnsRunID(t *testing.T) {
	var gotBody kickoffRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simulate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"run_id":"abc123"}`))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	params := run.Params{Symbol: "NVDA", Horizon: 30, Paths: 2000, Mode: run.ModeQuick, IncludeNews: true}

	runID, err := e.Kickoff(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, "abc123", runID)
	assert.Equal(t, "NVDA", gotBody.Symbol)
	assert.Equal(t, 2000, gotBody.NPaths)
	assert.Equal(t, "days", gotBody.Timespan)
	assert.True(t, gotBody.IncludeNews)
	assert.Contains(t, em.Lines(), "Simulation queued, run id abc123")
}

func TestKickoffMissingRunID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e, _ := newExecutor(t, server.URL)

	_, err := e.Kickoff(context.Background(), run.Params{Symbol: "NVDA", Horizon: 30})
	assert.Error(t, err)
}

func TestStatusCheckSurfacesDetailAndError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simulate/abc123/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"running","progress":80,"detail":"1600 of 2000 paths","error":"one shard slow"}`))
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	e.StatusCheck(context.Background(), "abc123")

	lines := em.Lines()
	assert.Contains(t, lines, "Run status: running (80%)")
	assert.Contains(t, lines, "Detail: 1600 of 2000 paths")
	assert.Contains(t, lines, "Backend reported: one shard slow")
}

func TestStatusCheckFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	e, em := newExecutor(t, server.URL)

	e.StatusCheck(context.Background(), "abc123")

	assert.Contains(t, strings.Join(em.Lines(), "\n"), "Status check failed")
}
