package artifact

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
)

func newFetcher(t *testing.T, serverURL string, opts ...FetcherOption) (*Fetcher, *emitter.Emitter) {
	t.Helper()

	em := emitter.New(emitter.WithInterval(0))
	t.Cleanup(em.Close)

	c := client.New(serverURL, "test-key")

	return NewFetcher(c, em, slog.Default(), opts...), em
}

func TestFetchSucceedsOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)

			return
		}

		_, _ = w.Write([]byte(validBody()))
	}))
	defer server.Close()

	f, em := newFetcher(t, server.URL)

	a, err := f.Fetch(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, "NVDA", a.Symbol)
	assert.EqualValues(t, 2, calls.Load())
	assert.Contains(t, em.Lines(), "Artifact pending...")
}

func TestFetchAlways202TimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	f, _ := newFetcher(t, server.URL, WithBudget(300*time.Millisecond))

	start := time.Now()
	_, err := f.Fetch(context.Background(), "abc123")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "must terminate near its budget, not run forever")
}

func TestFetchIncompleteBodyRetriesUntilBudget(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"median_path": [], "bands": {}}`))
	}))
	defer server.Close()

	f, em := newFetcher(t, server.URL, WithBudget(300*time.Millisecond))

	_, err := f.Fetch(context.Background(), "abc123")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.Contains(t, em.Lines(), "Artifact not complete yet, retrying...")
}

func TestFetchHTTPErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("run exploded"))
	}))
	defer server.Close()

	f, _ := newFetcher(t, server.URL)

	_, err := f.Fetch(context.Background(), "abc123")
	require.Error(t, err)

	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "run exploded", httpErr.Body)
	assert.EqualValues(t, 1, calls.Load(), "hard failures must not be retried")
}

func TestFetchHTMLBodyIsMisroute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<!doctype html><html><body>oops</body></html>"))
	}))
	defer server.Close()

	f, _ := newFetcher(t, server.URL)

	_, err := f.Fetch(context.Background(), "abc123")
	assert.ErrorIs(t, err, client.ErrHTMLResponse)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	f, _ := newFetcher(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.Fetch(ctx, "abc123")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffLinearAndCapped(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoff(1))
	assert.Equal(t, 750*time.Millisecond, backoff(2))
	assert.Equal(t, 1500*time.Millisecond, backoff(5))
	assert.Equal(t, 1500*time.Millisecond, backoff(50), "backoff must stay capped")
}
