package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserAgent = "hncrawler-test/1.0"

// newTestFetcher returns a fetcher whose backoff waits are recorded instead of slept.
func newTestFetcher(cfg Config) (*HTTPFetcher, *[]time.Duration) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = testUserAgent
	}
	f := New(cfg, nil, zerolog.Nop())
	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return f, &waits
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Config{BaseDelay: time.Second})
	body, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestFetchGivesUpAfterFourAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	var attempts, failures int
	f, waits := newTestFetcher(Config{})
	f.WithHooks(Hooks{
		OnAttempt: func(int) { attempts++ },
		OnFailure: func(int, error) { failures++ },
	})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, failures)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 3 * time.Second, 4500 * time.Millisecond}, *waits)
}

func TestFetchCountsAttemptsPerCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1)%2 == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(6), calls.Load())
}

func TestFetchSendsUserAgent(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, testUserAgent, <-got)
}

func TestFetchWithoutRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Config{MaxRetries: -1})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *waits)
}

func TestFetchTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		w.Write([]byte("late but fine"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{Timeout: 50 * time.Millisecond})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "late but fine", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	f := New(Config{MaxBodyBytes: 4}, nil, zerolog.New(&logs))
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
	assert.Contains(t, logs.String(), "Response body truncated")
	assert.Contains(t, logs.String(), srv.URL)
}

func TestFetchBodyAtLimitIsNotTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123"))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	f := New(Config{MaxBodyBytes: 4}, nil, zerolog.New(&logs))
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
	assert.NotContains(t, logs.String(), "truncated")
}

func TestDrainConsumesBoundedBody(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", 5000))
	drain(r)
	assert.Equal(t, 5000-4096, r.Len())
}

func TestFetchStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{BaseDelay: time.Hour}, nil, zerolog.Nop())
	start := time.Now()
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
