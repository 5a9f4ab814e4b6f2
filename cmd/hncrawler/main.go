package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reddot-watch/hncrawler/internal/config"
	"reddot-watch/hncrawler/internal/crawl"
	"reddot-watch/hncrawler/internal/database"
	"reddot-watch/hncrawler/internal/fetch"
	"reddot-watch/hncrawler/internal/schedule"
	"reddot-watch/hncrawler/internal/server"
)

const usage = `Usage: hncrawler [command] [options]
Commands: start, once, server, migrate

For command-specific options, use: hncrawler [command] -h`

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
}

func main() {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg := config.DefaultConfig()

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startLogLevel := registerCrawlFlags(startCmd, cfg)
	var intervalSeconds int
	startCmd.IntVar(&intervalSeconds, "interval", config.GetEnvInt(config.EnvPrefix+"INTERVAL", config.DefaultIntervalSeconds),
		"Seconds between the start of consecutive cycles (env: HNCRAWLER_INTERVAL)")
	startCmd.StringVar(&cfg.MetricsAddr, "metrics-addr", config.GetEnvString(config.EnvPrefix+"METRICS_ADDR", config.DefaultMetricsAddr),
		"Address for the /metrics listener, empty to disable (env: HNCRAWLER_METRICS_ADDR)")

	onceCmd := flag.NewFlagSet("once", flag.ExitOnError)
	onceLogLevel := registerCrawlFlags(onceCmd, cfg)

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString(config.EnvPrefix+"DB", config.DefaultDBPath),
		"Path to the SQLite database file (env: HNCRAWLER_DB)")
	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString(config.EnvPrefix+"HOST", config.DefaultServerHost),
		"Host to bind the server to (env: HNCRAWLER_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt(config.EnvPrefix+"PORT", config.DefaultServerPort),
		"Port to listen on (env: HNCRAWLER_PORT)")
	serverLogLevel := registerLogLevelFlag(serverCmd)

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString(config.EnvPrefix+"DB", config.DefaultDBPath),
		"Path to the SQLite database file (env: HNCRAWLER_DB)")
	var down int
	migrateCmd.IntVar(&down, "down", 0, "Roll back the last N migrations instead of applying pending ones")
	migrateLogLevel := registerLogLevelFlag(migrateCmd)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		startCmd.Parse(os.Args[2:])
		cfg.Interval = time.Duration(intervalSeconds) * time.Second
		err = runCrawler(cfg, setupLogging(cfg, *startLogLevel))

	case "once":
		onceCmd.Parse(os.Args[2:])
		cfg.Interval = 0
		cfg.MetricsAddr = ""
		err = runCrawler(cfg, setupLogging(cfg, *onceLogLevel))

	case "server":
		serverCmd.Parse(os.Args[2:])
		err = runServer(cfg, setupLogging(cfg, *serverLogLevel))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		err = runMigrate(cfg, down, setupLogging(cfg, *migrateLogLevel))

	case "-h", "--help", "help":
		fmt.Println(usage)
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func registerCrawlFlags(fs *flag.FlagSet, cfg *config.Config) *string {
	fs.StringVar(&cfg.DBPath, "db", config.GetEnvString(config.EnvPrefix+"DB", config.DefaultDBPath),
		"Path to the SQLite database file (env: HNCRAWLER_DB)")
	fs.StringVar(&cfg.BaseURL, "base-url", config.GetEnvString(config.EnvPrefix+"BASE_URL", config.DefaultBaseURL),
		"Front page URL; item pages are resolved under it (env: HNCRAWLER_BASE_URL)")
	fs.IntVar(&cfg.TopN, "top-n", config.GetEnvInt(config.EnvPrefix+"TOP_N", config.DefaultTopN),
		"Number of front page listings to process (env: HNCRAWLER_TOP_N)")
	fs.IntVar(&cfg.Concurrency, "concurrency", config.GetEnvInt(config.EnvPrefix+"CONCURRENCY", config.DefaultConcurrency),
		"Maximum simultaneous item pipelines (env: HNCRAWLER_CONCURRENCY)")
	fs.DurationVar(&cfg.RequestTimeout, "timeout",
		config.GetEnvDuration(config.EnvPrefix+"TIMEOUT", config.DefaultRequestTimeout*time.Second),
		"Per-request timeout (env: HNCRAWLER_TIMEOUT)")
	fs.Float64Var(&cfg.MaxFailureRatio, "max-failure-ratio",
		config.GetEnvFloat(config.EnvPrefix+"MAX_FAILURE_RATIO", config.DefaultMaxFailureRatio),
		"Mark a run as error when the failed item ratio exceeds this, 0 to disable (env: HNCRAWLER_MAX_FAILURE_RATIO)")
	return registerLogLevelFlag(fs)
}

func registerLogLevelFlag(fs *flag.FlagSet) *string {
	return fs.String("log-level", "",
		"Log level: debug, info, warn, error; empty keeps the default (env: HNCRAWLER_LOG_LEVEL)")
}

// setupLogging applies the requested level and returns the process logger.
func setupLogging(cfg *config.Config, levelStr string) zerolog.Logger {
	if err := cfg.SetLogLevel(levelStr); err != nil {
		log.Warn().Err(err).Str("level", levelStr).Msg("Unknown log level, keeping default")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	return log.Logger.With().Str("service", "hncrawler").Logger()
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-shutdown:
			logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(shutdown)
	}()

	return ctx, cancel
}

// runCrawler runs cycles until a shutdown signal, or once when the interval is zero.
func runCrawler(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Dur("interval", cfg.Interval).
		Int("top_n", cfg.TopN).
		Int("concurrency", cfg.Concurrency).
		Str("db", cfg.DBPath).
		Msg("Starting HN crawler")

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := crawl.NewMetrics(registry)
	if err != nil {
		db.Close()
		return err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	}, nil, logger).WithHooks(metrics.FetchHooks())

	crawler, err := crawl.New(crawl.Config{
		BaseURL:         cfg.BaseURL,
		TopN:            cfg.TopN,
		Concurrency:     cfg.Concurrency,
		MaxFailureRatio: cfg.MaxFailureRatio,
	}, fetcher, db, metrics, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}

	ctx, cancel := notifyContext(logger)
	defer cancel()

	var wg sync.WaitGroup
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsLogger := logger.With().Str("service", "hncrawler-metrics").Logger()
			if err := server.Serve(metricsCtx, cfg.MetricsAddr, server.NewMetricsHandler(registry, metricsLogger), metricsLogger); err != nil {
				metricsLogger.Error().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	runErr := schedule.New(crawler, cfg.Interval, logger, fetcher, db).Run(ctx)

	stopMetrics()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("failed to release resources: %w", runErr)
	}
	logger.Info().Msg("Crawler exited cleanly")
	return nil
}

// runServer starts the HTTP API server with the provided configuration.
func runServer(cfg *config.Config, logger zerolog.Logger) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = true

	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := notifyContext(logger)
	defer cancel()

	return server.RunServer(ctx, db, cfg.ListenAddr(), logger, cfg.APIKey)
}

// runMigrate applies pending migrations, or rolls back the last n when n > 0.
func runMigrate(cfg *config.Config, n int, logger zerolog.Logger) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if n <= 0 {
		logger.Info().Str("db", cfg.DBPath).Msg("Schema is up to date")
		return nil
	}
	if err := db.Rollback(n); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	logger.Info().Int("count", n).Msg("Rolled back migrations")
	return nil
}
