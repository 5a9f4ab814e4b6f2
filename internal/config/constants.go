package config

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./hn.db"

	DefaultBaseURL   = "https://news.ycombinator.com/"
	DefaultUserAgent = "hncrawler/1.0 (+https://news.ycombinator.com/)"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultIntervalSeconds = 300
	DefaultTopN            = 30
	DefaultConcurrency     = 8
	DefaultRequestTimeout  = 20 // Seconds
	DefaultMaxFailureRatio = 0.0
	DefaultMetricsAddr     = "" // Empty string disables the metrics listener

	DefaultLogLevel = "info"

	// EnvPrefix is prepended to every environment variable the crawler reads.
	EnvPrefix = "HNCRAWLER_"
)
