package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	DBPath string

	// Source settings
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration

	// Crawl settings
	Interval        time.Duration
	TopN            int
	Concurrency     int
	MaxFailureRatio float64

	// Server settings
	ServerHost  string
	ServerPort  int
	APIKey      string
	MetricsAddr string

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)
	logLevel = GetEnvLogLevel(EnvPrefix+"LOG_LEVEL", logLevel)

	return &Config{
		DBPath:          DefaultDBPath,
		BaseURL:         DefaultBaseURL,
		UserAgent:       DefaultUserAgent,
		RequestTimeout:  DefaultRequestTimeout * time.Second,
		Interval:        DefaultIntervalSeconds * time.Second,
		TopN:            DefaultTopN,
		Concurrency:     DefaultConcurrency,
		MaxFailureRatio: DefaultMaxFailureRatio,
		ServerHost:      DefaultServerHost,
		ServerPort:      DefaultServerPort,
		APIKey:          GetEnvString(EnvPrefix+"API_KEY", ""),
		MetricsAddr:     DefaultMetricsAddr,
		LogLevel:        logLevel,
	}
}

// Validate rejects settings the crawler cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path must be set")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must be >= 0, got %s", c.Interval)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top-n must be > 0, got %d", c.TopN)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0, got %d", c.Concurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0, got %s", c.RequestTimeout)
	}
	if c.MaxFailureRatio < 0 || c.MaxFailureRatio > 1 {
		return fmt.Errorf("max failure ratio must be within [0, 1], got %g", c.MaxFailureRatio)
	}
	return nil
}

// SetLogLevel parses a level name into LogLevel. An empty name keeps the
// current level.
func (c *Config) SetLogLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", name, err)
	}
	c.LogLevel = level
	return nil
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
