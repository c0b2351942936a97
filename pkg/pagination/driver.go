package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/zieneks/teamtailor-csv-export/pkg/flatten"
	"github.com/zieneks/teamtailor-csv-export/pkg/jsonapi"
	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
	"github.com/zieneks/teamtailor-csv-export/pkg/metrics"
)

var (
	pagesFetchedTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_pages_fetched_total",
		Help: "Total number of candidate pages fetched",
	})

	rowsFlattenedTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_rows_flattened_total",
		Help: "Total number of rows produced from candidate pages",
	})

	pageLimitExceededTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_page_limit_exceeded_total",
		Help: "Total number of exports aborted by the page limit",
	})
)

// ErrPageLimitExceeded is returned when the upstream keeps advertising a
// next page beyond Config.MaxPages.
var ErrPageLimitExceeded = errors.New("pagination limit exceeded")

// PageFetcher fetches a single 1-based page.
type PageFetcher interface {
	FetchPage(ctx context.Context, credential string, page int) (*jsonapi.Document, error)
}

// Progress is reported after every page.
type Progress struct {
	Page       int
	TotalPages int // 0 when unknown
	Rows       int
}

// Label formats the progress as "page 3/10", or "page 3" if the total is unknown.
func (p Progress) Label() string {
	return ProgressLabel(p.Page, p.TotalPages)
}

// Config holds driver configuration.
type Config struct {
	// PageSize is the page[size] the fetcher requests; used to turn a
	// record count into a page count.
	PageSize int

	// MaxPages aborts the export after this many pages. Zero disables the bound.
	MaxPages int

	// OnProgress is called after every page. Optional.
	OnProgress func(Progress)
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 30,
		MaxPages: 10000,
	}
}

// Driver fetches all pages sequentially.
type Driver struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewDriver creates a new pagination driver.
func NewDriver(fetcher PageFetcher, config Config) *Driver {
	if config.PageSize <= 0 {
		config.PageSize = 30
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Driver{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAll returns the rows of every page in payload order. The first
// failing page aborts the walk and no rows are returned.
func (d *Driver) FetchAll(ctx context.Context, credential string) ([]flatten.Row, error) {
	start := time.Now()

	var (
		rows       []flatten.Row
		totalPages int
		page       = 1
	)

	for {
		if d.config.MaxPages > 0 && page > d.config.MaxPages {
			pageLimitExceededTotal.Inc()
			d.logger.Error().
				Int("max_pages", d.config.MaxPages).
				Msg("Upstream still advertises more pages, aborting")
			return nil, fmt.Errorf("%w: more than %d pages", ErrPageLimitExceeded, d.config.MaxPages)
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		doc, err := d.fetcher.FetchPage(ctx, credential, page)
		if err != nil {
			d.logger.Warn().
				Err(err).
				Int("page", page).
				Int("rows_discarded", len(rows)).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		if totalPages == 0 {
			totalPages = EstimateTotalPages(doc.Meta, d.config.PageSize)
		}

		pageRows := flatten.Page(doc)
		rows = append(rows, pageRows...)

		pagesFetchedTotal.Inc()
		rowsFlattenedTotal.Add(float64(len(pageRows)))

		progress := Progress{Page: page, TotalPages: totalPages, Rows: len(rows)}
		d.logger.Info().
			Int("page", page).
			Int("total_pages", totalPages).
			Int("candidates", len(doc.Data)).
			Int("rows", len(rows)).
			Msgf("Fetched %s", progress.Label())
		if d.config.OnProgress != nil {
			d.config.OnProgress(progress)
		}

		if !doc.HasNext() {
			break
		}
		page++
	}

	d.logger.Info().
		Int("pages", page).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return rows, nil
}

// EstimateTotalPages derives the page count from meta: the record count
// divided by pageSize rounded up, else the explicit page count, else 0.
func EstimateTotalPages(meta jsonapi.Meta, pageSize int) int {
	if records, ok := meta.RecordCount(); ok && pageSize > 0 {
		return (records + pageSize - 1) / pageSize
	}
	if pages, ok := meta.PageCount(); ok {
		return pages
	}
	return 0
}

// ProgressLabel formats a page position for display.
func ProgressLabel(page, totalPages int) string {
	if totalPages <= 0 {
		return fmt.Sprintf("page %d", page)
	}
	return fmt.Sprintf("page %d/%d", page, totalPages)
}
