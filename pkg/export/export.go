// Package export runs a complete candidates export: every page is fetched,
// flattened and encoded into one CSV document before anything is returned.
package export

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/zieneks/teamtailor-csv-export/pkg/client"
	"github.com/zieneks/teamtailor-csv-export/pkg/csvexport"
	"github.com/zieneks/teamtailor-csv-export/pkg/flatten"
	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
	"github.com/zieneks/teamtailor-csv-export/pkg/metrics"
	"github.com/zieneks/teamtailor-csv-export/pkg/pagination"
)

var (
	exportsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "teamtailor_exports_total",
		Help: "Total candidate exports by outcome",
	}, []string{"outcome"})

	exportDuration = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "teamtailor_export_duration_seconds",
		Help:    "Duration of successful candidate exports",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	exportRows = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "teamtailor_export_rows",
		Help:    "Rows per successful candidate export",
		Buckets: prometheus.ExponentialBuckets(10, 4, 7),
	})
)

// Outcomes recorded for every export.
const (
	OutcomeSuccess           = "success"
	OutcomeMissingCredential = "missing_credential"
	OutcomeInvalidCredential = "invalid_credential"
	OutcomeAccessDenied      = "access_denied"
	OutcomeRateLimited       = "rate_limited"
	OutcomePageLimit         = "page_limit"
	OutcomeUpstreamError     = "upstream_error"
	OutcomeCancelled         = "cancelled"
	OutcomeError             = "error"
)

// RowSource produces every row of an export.
type RowSource interface {
	FetchAll(ctx context.Context, credential string) ([]flatten.Row, error)
}

// Result is a finished export.
type Result struct {
	Document string
	Rows     int
	Filename string
	Duration time.Duration
}

// Exporter turns a RowSource into CSV documents. It keeps no state between
// exports and is safe for concurrent use.
type Exporter struct {
	source RowSource
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an exporter reading rows from source.
func New(source RowSource) *Exporter {
	return &Exporter{
		source: source,
		now:    time.Now,
		logger: logging.NewLogger(logging.ComponentExporter),
	}
}

// Export fetches every candidate and encodes the CSV document. On failure
// no document is returned.
func (e *Exporter) Export(ctx context.Context, credential string) (*Result, error) {
	start := e.now()

	if strings.TrimSpace(credential) == "" {
		exportsTotal.WithLabelValues(OutcomeMissingCredential).Inc()
		return nil, client.ErrMissingCredential
	}

	e.logger.Info().Msg("Starting candidate export")

	rows, err := e.source.FetchAll(ctx, credential)
	if err != nil {
		outcome := Outcome(err)
		exportsTotal.WithLabelValues(outcome).Inc()
		e.logger.Error().
			Err(err).
			Str("outcome", outcome).
			Dur("duration", e.now().Sub(start)).
			Msg("Candidate export failed")
		return nil, err
	}

	result := &Result{
		Document: csvexport.Encode(rows),
		Rows:     len(rows),
		Filename: Filename(start),
		Duration: e.now().Sub(start),
	}

	exportsTotal.WithLabelValues(OutcomeSuccess).Inc()
	exportDuration.Observe(result.Duration.Seconds())
	exportRows.Observe(float64(result.Rows))

	e.logger.Info().
		Int("rows", result.Rows).
		Int("bytes", len(result.Document)).
		Dur("duration", result.Duration).
		Msg("Candidate export complete")

	return result, nil
}

// Filename returns the download name for an export started at t.
func Filename(t time.Time) string {
	return "candidates-" + t.Format("2006-01-02") + ".csv"
}

// Outcome classifies an export error for metrics and logs.
func Outcome(err error) string {
	var upstream *client.UpstreamError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, client.ErrMissingCredential):
		return OutcomeMissingCredential
	case errors.Is(err, client.ErrInvalidCredential):
		return OutcomeInvalidCredential
	case errors.Is(err, client.ErrAccessDenied):
		return OutcomeAccessDenied
	case errors.Is(err, client.ErrRateLimitExceeded):
		return OutcomeRateLimited
	case errors.Is(err, pagination.ErrPageLimitExceeded):
		return OutcomePageLimit
	case errors.Is(err, client.ErrContextCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.As(err, &upstream):
		return OutcomeUpstreamError
	default:
		return OutcomeError
	}
}
