// Package crawl runs one crawl cycle: front page, bounded fan-out over the
// listed items, and the run audit record around it.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"reddot-watch/hncrawler/internal/fetch"
	"reddot-watch/hncrawler/internal/models"
	"reddot-watch/hncrawler/internal/parse"
)

const defaultConcurrency = 8

// Store is the persistence surface used by a crawl cycle.
type Store interface {
	UpsertItem(ctx context.Context, listing models.Listing) error
	InsertLinksIfAbsent(ctx context.Context, itemID int64, links []models.DiscussionLink) (int64, error)
	BeginRun(ctx context.Context) (int64, error)
	CompleteRun(ctx context.Context, runID int64, status models.RunStatus, note string, stats models.RunStats) error
}

// Config controls a Crawler.
type Config struct {
	// BaseURL is the front page; detail pages are BaseURL + "item?id={id}".
	BaseURL     string
	TopN        int
	Concurrency int
	// MaxFailureRatio marks a run as failed when failed/total exceeds it.
	// Zero disables the check.
	MaxFailureRatio float64
}

// Outcome summarizes a finished cycle.
type Outcome struct {
	RunID    int64
	Status   models.RunStatus
	Note     string
	Stats    models.RunStats
	Duration time.Duration
}

// Crawler coordinates fetching, parsing and persisting one cycle.
type Crawler struct {
	cfg     Config
	fetcher fetch.Fetcher
	store   Store
	metrics *Metrics
	logger  zerolog.Logger
}

// New creates a Crawler. metrics may be nil.
func New(cfg Config, fetcher fetch.Fetcher, store Store, metrics *Metrics, logger zerolog.Logger) (*Crawler, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL must be set")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		metrics: metrics,
		logger:  logger.With().Str("component", "crawl").Logger(),
	}, nil
}

// ItemURL returns the detail page address of an item.
func (c *Crawler) ItemURL(id int64) string {
	return fmt.Sprintf("%sitem?id=%d", c.cfg.BaseURL, id)
}

// RunOnce executes a single cycle. An error is returned only when the run
// could not be recorded at all; a front page failure is reported through
// the outcome status.
func (c *Crawler) RunOnce(ctx context.Context) (Outcome, error) {
	started := time.Now()

	runID, err := c.store.BeginRun(ctx)
	if err != nil {
		c.metrics.observeRun(models.RunStatusError, time.Since(started))
		return Outcome{Status: models.RunStatusError, Note: err.Error()}, fmt.Errorf("begin run: %w", err)
	}
	logger := c.logger.With().Int64("run_id", runID).Logger()
	logger.Info().Msg("Run started")

	front, err := c.fetcher.Fetch(ctx, c.cfg.BaseURL)
	if err != nil {
		logger.Error().Err(err).Str("url", c.cfg.BaseURL).Msg("Front page unavailable")
		return c.finish(ctx, logger, runID, started, models.RunStatusError, "front page: "+err.Error(), models.RunStats{})
	}

	listings := parse.ParseListing(front, c.cfg.TopN)
	if len(listings) == 0 {
		logger.Warn().Int("bytes", len(front)).Msg("Front page yielded no listings")
	} else {
		logger.Info().Int("listings", len(listings)).Msg("Found front page listings")
	}

	stats := c.processAll(ctx, logger, listings)

	status, note := models.RunStatusOK, ""
	if c.failureRatioExceeded(stats) {
		status = models.RunStatusError
		note = fmt.Sprintf("%d of %d items failed", stats.ItemsFailed, stats.ItemsTotal)
	}
	return c.finish(ctx, logger, runID, started, status, note, stats)
}

func (c *Crawler) finish(
	ctx context.Context,
	logger zerolog.Logger,
	runID int64,
	started time.Time,
	status models.RunStatus,
	note string,
	stats models.RunStats,
) (Outcome, error) {
	elapsed := time.Since(started)
	c.metrics.observeRun(status, elapsed)

	outcome := Outcome{
		RunID:    runID,
		Status:   status,
		Note:     note,
		Stats:    stats,
		Duration: elapsed,
	}

	if err := c.store.CompleteRun(ctx, runID, status, note, stats); err != nil {
		logger.Error().Err(err).Msg("Failed to record run completion")
		return outcome, fmt.Errorf("complete run %d: %w", runID, err)
	}

	event := logger.Info()
	if status == models.RunStatusError {
		event = logger.Warn().Str("note", note)
	}
	event.
		Str("status", string(status)).
		Int64("items", stats.ItemsTotal).
		Int64("failed", stats.ItemsFailed).
		Int64("links_added", stats.LinksAdded).
		Dur("duration", elapsed).
		Msg("Run finished")
	return outcome, nil
}

func (c *Crawler) failureRatioExceeded(stats models.RunStats) bool {
	if c.cfg.MaxFailureRatio <= 0 || stats.ItemsTotal == 0 {
		return false
	}
	return float64(stats.ItemsFailed)/float64(stats.ItemsTotal) > c.cfg.MaxFailureRatio
}

// processAll feeds listings to a fixed pool of workers and waits for all of
// them. Item failures are counted, never propagated.
func (c *Crawler) processAll(ctx context.Context, logger zerolog.Logger, listings []models.Listing) models.RunStats {
	var failed, linksAdded atomic.Int64

	workerCount := min(c.cfg.Concurrency, len(listings))
	queue := make(chan models.Listing)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for listing := range queue {
				c.metrics.workerStarted()
				added, err := c.processItem(ctx, listing)
				c.metrics.workerFinished()
				c.metrics.observeItem(err, added)

				if err != nil {
					failed.Add(1)
					logger.Error().Err(err).Int64("item_id", listing.ID).Msg("Failed to process item")
					continue
				}
				linksAdded.Add(added)
				logger.Debug().
					Int64("item_id", listing.ID).
					Int64("links_added", added).
					Msg("Saved item")
			}
		}()
	}

	for _, listing := range listings {
		queue <- listing
	}
	close(queue)
	wg.Wait()

	return models.RunStats{
		ItemsTotal:  int64(len(listings)),
		ItemsFailed: failed.Load(),
		LinksAdded:  linksAdded.Load(),
	}
}

// processItem fetches the detail page, extracts links and stores both the
// item and its links. A panic inside the pipeline is turned into an error.
func (c *Crawler) processItem(ctx context.Context, listing models.Listing) (added int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item %d: panic: %v", listing.ID, r)
		}
	}()

	body, err := c.fetcher.Fetch(ctx, c.ItemURL(listing.ID))
	if err != nil {
		return 0, err
	}
	links := parse.ParseLinks(listing.ID, body)

	if err := c.store.UpsertItem(ctx, listing); err != nil {
		return 0, err
	}
	added, err = c.store.InsertLinksIfAbsent(ctx, listing.ID, links)
	if err != nil {
		return 0, err
	}
	return added, nil
}
