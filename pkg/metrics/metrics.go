// Package metrics exposes the Prometheus registry used by the exporter.
// All metrics are defined in their respective packages (client, pagination,
// ratelimit, export) and registered on Registry via promauto.With.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package passes to promauto.With.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - teamtailor_requests_total{status} (Counter): Requests by HTTP status
//   - teamtailor_request_duration_seconds (Histogram): Request duration
//   - teamtailor_errors_total{class} (Counter): Errors by class (auth, forbidden, rate_limit, client, server, network, decode)
//   - teamtailor_rate_limit_window_waits_total (Counter): Requests delayed until a recorded window reset
//
// Retry Metrics (pkg/client):
//   - teamtailor_retries_total (Counter): Retries after a 429 response
//   - teamtailor_retry_backoff_seconds (Histogram): Wait before each retry
//   - teamtailor_retry_exhausted_total (Counter): Pages that exhausted their retries
//
// Pagination Metrics (pkg/pagination):
//   - teamtailor_pages_fetched_total (Counter): Candidate pages fetched
//   - teamtailor_rows_flattened_total (Counter): Rows produced from pages
//   - teamtailor_page_limit_exceeded_total (Counter): Exports aborted by the page limit
//
// Rate Limit Metrics (pkg/ratelimit):
//   - teamtailor_rate_limit_remaining (Gauge): Requests left in the upstream window
//   - teamtailor_rate_limit_low_total (Counter): Responses seen with a nearly exhausted window
//
// Export Metrics (pkg/export):
//   - teamtailor_exports_total{outcome} (Counter): Exports by outcome
//   - teamtailor_export_duration_seconds (Histogram): Duration of successful exports
//   - teamtailor_export_rows (Histogram): Rows per successful export
//
// Example Prometheus Queries:
//
//   # Export Failure Rate
//   sum(rate(teamtailor_exports_total{outcome!="success"}[1h])) /
//   sum(rate(teamtailor_exports_total[1h]))
//
//   # Rate Limited Share Of Requests
//   rate(teamtailor_requests_total{status="429"}[5m]) / sum(rate(teamtailor_requests_total[5m]))
//
//   # P95 Export Duration
//   histogram_quantile(0.95, rate(teamtailor_export_duration_seconds_bucket[1h]))
