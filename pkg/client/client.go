// Package client fetches candidate pages from the Teamtailor API, retrying
// rate limited responses with exponential backoff.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zieneks/teamtailor-csv-export/pkg/jsonapi"
	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
	"github.com/zieneks/teamtailor-csv-export/pkg/metrics"
	"github.com/zieneks/teamtailor-csv-export/pkg/ratelimit"
)

// Prometheus metrics for Teamtailor requests.
var (
	requestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "teamtailor_requests_total",
		Help: "Total Teamtailor requests by status",
	}, []string{"status"})

	requestDuration = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "teamtailor_request_duration_seconds",
		Help:    "Teamtailor request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "teamtailor_errors_total",
		Help: "Total Teamtailor errors by class",
	}, []string{"class"})

	windowWaitsTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_rate_limit_window_waits_total",
		Help: "Total number of requests delayed until a recorded rate limit window reset",
	})
)

// RateLimitTracker shares the observed rate limit window between exports.
// *ratelimit.Tracker implements it.
type RateLimitTracker interface {
	GetState(ctx context.Context) (*ratelimit.State, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

const (
	// DefaultBaseURL is the Teamtailor API root.
	DefaultBaseURL = "https://api.teamtailor.com/v1"

	// DefaultAPIVersion pins the X-Api-Version header.
	DefaultAPIVersion = "20240904"

	// DefaultPageSize is the largest page Teamtailor serves.
	DefaultPageSize = 30

	// MediaType is the JSON:API media type.
	MediaType = "application/vnd.api+json"

	candidatesPath = "/candidates"
	includeParam   = "job-applications"

	// maxErrorBody caps how much of an error response ends up in the error message.
	maxErrorBody = 512
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.teamtailor.com/v1 or the
	// api.na.teamtailor.com region.
	BaseURL string

	// APIVersion is sent as X-Api-Version.
	APIVersion string

	// UserAgent is sent with every request.
	UserAgent string

	// PageSize is sent as page[size]. Teamtailor caps it at 30.
	PageSize int

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// RequestsPerSecond throttles requests before they are sent.
	// Zero disables throttling.
	RequestsPerSecond float64

	// Retry configures the backoff for 429 responses.
	Retry RetryPolicy

	// HTTPClient overrides the default HTTP client (Timeout is ignored then).
	HTTPClient *http.Client

	// Tracker records rate limit headers and delays requests while a fresh
	// recorded window is exhausted. Optional.
	Tracker RateLimitTracker

	// Clock drives backoff waits. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		APIVersion:        DefaultAPIVersion,
		UserAgent:         "teamtailor-csv-export/1.0",
		PageSize:          DefaultPageSize,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 4,
		Retry:             DefaultRetryPolicy(),
	}
}

// Client fetches candidate pages. It holds no per-export state and is safe
// for concurrent use by independent exports.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	tracker    RateLimitTracker
	clock      clockwork.Clock
	sleep      sleepFunc
	retry      *retrier
	config     Config
	logger     zerolog.Logger
}

// New creates a new Teamtailor client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}

	if cfg.PageSize < 1 || cfg.PageSize > DefaultPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d (got %d)", DefaultPageSize, cfg.PageSize)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	if cfg.Retry.InitialBackoff <= 0 {
		return nil, fmt.Errorf("initial backoff must be positive (got %s)", cfg.Retry.InitialBackoff)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	logger := logging.NewLogger(logging.ComponentClient)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, 1),
		tracker:    cfg.Tracker,
		clock:      clock,
		sleep:      clockSleep(clock),
		retry: &retrier{
			policy: cfg.Retry,
			sleep:  clockSleep(clock),
			logger: logger,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// PageSize returns the configured page[size].
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// PageURL returns the URL of the given 1-based candidates page.
func (c *Client) PageURL(page int) string {
	query := url.Values{}
	query.Set("include", includeParam)
	query.Set("page[size]", strconv.Itoa(c.config.PageSize))
	query.Set("page[number]", strconv.Itoa(page))

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + candidatesPath
	u.RawQuery = query.Encode()
	return u.String()
}

// FetchPage fetches one candidates page with job applications side-loaded.
// 429 responses are retried per the retry policy; 401, 403 and every other
// non-2xx status fail immediately.
func (c *Client) FetchPage(ctx context.Context, credential string, page int) (*jsonapi.Document, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrMissingCredential
	}
	if page < 1 {
		return nil, fmt.Errorf("page number must be >= 1 (got %d)", page)
	}

	pageURL := c.PageURL(page)
	return c.retry.run(ctx, page, func(ctx context.Context) (*jsonapi.Document, error) {
		return c.doOnce(ctx, credential, pageURL, page)
	})
}

// doOnce performs a single request attempt.
func (c *Client) doOnce(ctx context.Context, credential, pageURL string, page int) (*jsonapi.Document, error) {
	if err := c.awaitWindow(ctx, page); err != nil {
		return nil, err
	}

	// Wait fails early when the next slot lies past the deadline, without
	// wrapping a context error.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrContextCancelled, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, credential)

	c.logger.Debug().
		Int("page", page).
		Str("url", pageURL).
		Msg("Executing Teamtailor request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Int("page", page).Msg("HTTP request failed")
		return nil, fmt.Errorf("request page %d: %w", page, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.tracker != nil {
		if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := newStatusError(resp.StatusCode, errorMessage(resp))
		errorsTotal.WithLabelValues(string(statusErr.ErrorClass)).Inc()
		c.logger.Warn().
			Int("page", page).
			Int("status", resp.StatusCode).
			Str("error_class", string(statusErr.ErrorClass)).
			Msg("Teamtailor request error")
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}

	doc, err := jsonapi.Decode(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	return doc, nil
}

// awaitWindow delays the request while the shared window recorded by the
// tracker is exhausted. Tracker failures are logged and ignored.
func (c *Client) awaitWindow(ctx context.Context, page int) error {
	if c.tracker == nil {
		return nil
	}

	state, err := c.tracker.GetState(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read rate limit state")
		return nil
	}

	now := c.clock.Now()
	if state == nil || state.IsStale(now, ratelimit.StateMaxAge) || !state.IsExhausted(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	if wait > ratelimit.MaxResetWait {
		wait = ratelimit.MaxResetWait
	}

	windowWaitsTotal.Inc()
	c.logger.Warn().
		Int("page", page).
		Dur("wait", wait).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit window exhausted, waiting for reset")

	if err := c.sleep(ctx, wait); err != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, credential string) {
	req.Header.Set("Authorization", "Token token="+credential)
	req.Header.Set("X-Api-Version", c.config.APIVersion)
	req.Header.Set("Content-Type", MediaType)
	req.Header.Set("Accept", MediaType)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
}

// errorMessage returns the status line plus the start of the body.
func errorMessage(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(snippet))
	if text == "" {
		return resp.Status
	}
	return resp.Status + ": " + text
}
