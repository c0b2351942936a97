package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/zieneks/teamtailor-csv-export/pkg/jsonapi"
	"github.com/zieneks/teamtailor-csv-export/pkg/metrics"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_retries_total",
		Help: "Total number of retries after a rate limited response",
	})

	retryBackoffSeconds = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "teamtailor_retry_backoff_seconds",
		Help:    "Backoff duration before a retry",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	})

	retryExhaustedTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamtailor_retry_exhausted_total",
		Help: "Total number of page requests that exhausted their retries",
	})
)

// RetryPolicy configures the backoff for rate limited responses.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. It doubles for
	// every further retry.
	InitialBackoff time.Duration
}

// DefaultRetryPolicy returns 3 retries waiting 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
	}
}

// Backoff returns the wait before retry number retry (1-based):
// InitialBackoff * 2^(retry-1). There is no jitter.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return p.InitialBackoff << (retry - 1)
}

// State is a step of the retry state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateBackingOff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateBackingOff:
		return "backing_off"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// clockSleep waits on the given clock so tests can substitute a fake one.
func clockSleep(clock clockwork.Clock) sleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		timer := clock.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	}
}

type attemptFunc func(ctx context.Context) (*jsonapi.Document, error)

// retrier drives one page request through
// Idle -> AwaitingResponse -> (BackingOff -> AwaitingResponse)* -> Succeeded | Failed.
type retrier struct {
	policy RetryPolicy
	sleep  sleepFunc
	logger zerolog.Logger

	// onTransition observes every state change; nil in production.
	onTransition func(from, to State)
}

func (r *retrier) run(ctx context.Context, page int, attempt attemptFunc) (*jsonapi.Document, error) {
	var (
		state   = StateIdle
		doc     *jsonapi.Document
		lastErr error
		retries int
	)

	transition := func(next State) {
		if r.onTransition != nil {
			r.onTransition(state, next)
		}
		state = next
	}

	for {
		switch state {
		case StateIdle:
			transition(StateAwaitingResponse)

		case StateAwaitingResponse:
			doc, lastErr = attempt(ctx)
			switch {
			case lastErr == nil:
				transition(StateSucceeded)
			case !shouldRetry(classOf(lastErr)):
				transition(StateFailed)
			case retries >= r.policy.MaxRetries:
				retryExhaustedTotal.Inc()
				r.logger.Error().
					Int("page", page).
					Int("retries", retries).
					Msg("Rate limit retries exhausted")
				lastErr = &UpstreamError{
					StatusCode: http.StatusTooManyRequests,
					ErrorClass: ErrorClassRateLimit,
					Message:    fmt.Sprintf("page %d still rate limited after %d retries", page, retries),
					Err:        ErrRateLimitExceeded,
				}
				transition(StateFailed)
			default:
				transition(StateBackingOff)
			}

		case StateBackingOff:
			retries++
			wait := r.policy.Backoff(retries)

			retriesTotal.Inc()
			retryBackoffSeconds.Observe(wait.Seconds())
			r.logger.Warn().
				Int("page", page).
				Int("retry", retries).
				Int("max_retries", r.policy.MaxRetries).
				Dur("backoff", wait).
				Msgf("Rate limited on page %d, retrying in %s (%d/%d)", page, wait, retries, r.policy.MaxRetries)

			if err := r.sleep(ctx, wait); err != nil {
				r.logger.Warn().
					Int("page", page).
					Int("retry", retries).
					Msg("Context cancelled during retry backoff")
				lastErr = fmt.Errorf("%w: %v", ErrContextCancelled, err)
				transition(StateFailed)
				continue
			}
			transition(StateAwaitingResponse)

		case StateSucceeded:
			if retries > 0 {
				r.logger.Info().
					Int("page", page).
					Int("retries", retries).
					Msg("Request succeeded after retry")
			}
			return doc, nil

		case StateFailed:
			return nil, lastErr
		}
	}
}
