// Package fetch retrieves remote pages over HTTP with a bounded, linear
// retry schedule.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxRetries   = 3
	defaultBaseDelay    = 1500 * time.Millisecond
	defaultMaxBodyBytes = 8 << 20
)

// Fetcher retrieves the body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned when the server answers outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Config controls HTTPFetcher behavior. Zero values fall back to defaults.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	// MaxRetries counts attempts after the first one; negative disables retries.
	MaxRetries   int
	BaseDelay    time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher implements Fetcher over a shared http.Client.
type HTTPFetcher struct {
	client *http.Client
	cfg    Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	hooks  Hooks
}

// Hooks are optional callbacks invoked around each attempt.
type Hooks struct {
	OnAttempt func(attempt int)
	OnFailure func(attempt int, err error)
}

// New creates an HTTPFetcher. A nil client gets a dedicated one using the
// configured timeout.
func New(cfg Config, client *http.Client, logger zerolog.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
	}
	return &HTTPFetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "fetch").Logger(),
		sleep:  sleepContext,
	}
}

// WithHooks attaches attempt callbacks and returns the fetcher.
func (f *HTTPFetcher) WithHooks(h Hooks) *HTTPFetcher {
	f.hooks = h
	return f
}

// Fetch performs a GET, retrying every failure up to MaxRetries more times.
// Retry n waits n*BaseDelay first. The error of the final attempt is returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempts := f.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * f.cfg.BaseDelay
			if err := f.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("fetch %s: %w (last error: %v)", url, err, lastErr)
			}
		}

		if f.hooks.OnAttempt != nil {
			f.hooks.OnAttempt(attempt)
		}
		body, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if f.hooks.OnFailure != nil {
			f.hooks.OnFailure(attempt, err)
		}
		if errors.Is(err, context.Canceled) {
			break
		}

		f.logger.Debug().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("Fetch attempt failed")
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, attempts, lastErr)
}

// Close releases idle connections held by the client transport.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		f.logger.Warn().
			Str("url", url).
			Int64("max_bytes", f.cfg.MaxBodyBytes).
			Msg("Response body truncated")
		body = body[:f.cfg.MaxBodyBytes]
	}
	return body, nil
}

// drain reads a bounded amount of an unwanted body so the connection can be reused.
func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
