package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zieneks/teamtailor-csv-export/internal/config"
	"github.com/zieneks/teamtailor-csv-export/pkg/client"
	"github.com/zieneks/teamtailor-csv-export/pkg/csvexport"
	"github.com/zieneks/teamtailor-csv-export/pkg/export"
	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
	"github.com/zieneks/teamtailor-csv-export/pkg/metrics"
	"github.com/zieneks/teamtailor-csv-export/pkg/pagination"
	"github.com/zieneks/teamtailor-csv-export/pkg/ratelimit"
)

const (
	exportPath      = "/api/export/candidates.csv"
	shutdownTimeout = 15 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the candidates export over HTTP",
		Long: `Start an HTTP server exposing:

  GET /api/export/candidates.csv   full candidates export as CSV
  GET /health                      liveness
  GET /ready                       readiness (pings Redis when configured)
  GET /metrics                     Prometheus metrics

When --static-dir is set its files are served at /.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().String("static-dir", "", "directory served at / (optional)")
	cmd.Flags().Duration("export-timeout", 5*time.Minute, "upper bound for one export (0 = none)")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := logging.NewLogger(logging.ComponentServer)

	redisClient, tracker, closeRedis, err := a.openTracker()
	if err != nil {
		return err
	}
	defer closeRedis()

	clientCfg := a.cfg.ClientConfig()
	if tracker != nil {
		clientCfg.Tracker = tracker
	}
	exporter, err := newExporter(clientCfg, a.cfg.PaginationConfig())
	if err != nil {
		return err
	}

	srv := newServer(a.cfg, exporter, redisClient, tracker)

	httpServer := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Bool("redis", redisClient != nil).
			Bool("static", a.cfg.StaticDir != "").
			Msg("Starting export server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down export server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// server holds the HTTP handlers.
type server struct {
	cfg      *config.Config
	exporter *export.Exporter
	redis    *redis.Client
	tracker  *ratelimit.Tracker
	logger   zerolog.Logger
}

func newServer(cfg *config.Config, exporter *export.Exporter, redisClient *redis.Client, tracker *ratelimit.Tracker) *server {
	return &server{
		cfg:      cfg,
		exporter: exporter,
		redis:    redisClient,
		tracker:  tracker,
		logger:   logging.NewLogger(logging.ComponentServer),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+exportPath, s.handleExport)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.tracker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.tracker.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		if state, err := s.tracker.GetState(ctx); err == nil {
			s.logger.Debug().
				Int("remaining", state.Remaining).
				Int("limit", state.Limit).
				Bool("healthy", state.IsHealthy).
				Msg("Rate limit state")
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cfg.ExportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExportTimeout)
		defer cancel()
	}

	result, err := s.exporter.Export(ctx, s.cfg.APIKey)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", csvexport.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, result.Document); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write export response")
	}
}

// errorStatus maps an export error to the HTTP status and message returned
// to the caller. Upstream response bodies are not echoed.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, client.ErrMissingCredential):
		return http.StatusInternalServerError, "Teamtailor API key is not configured"
	case errors.Is(err, client.ErrInvalidCredential):
		return http.StatusUnauthorized, "Teamtailor rejected the API key"
	case errors.Is(err, client.ErrAccessDenied):
		return http.StatusForbidden, "API key is not allowed to read candidates"
	case errors.Is(err, client.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "Teamtailor rate limit exceeded, try again later"
	case errors.Is(err, pagination.ErrPageLimitExceeded):
		return http.StatusBadGateway, "export exceeded the page limit"
	case errors.Is(err, client.ErrContextCancelled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "export timed out"
	default:
		return http.StatusBadGateway, "failed to fetch candidates from Teamtailor"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	body, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
