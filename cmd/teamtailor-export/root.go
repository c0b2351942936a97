package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/zieneks/teamtailor-csv-export/internal/config"
	"github.com/zieneks/teamtailor-csv-export/pkg/client"
	"github.com/zieneks/teamtailor-csv-export/pkg/export"
	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
	"github.com/zieneks/teamtailor-csv-export/pkg/pagination"
	"github.com/zieneks/teamtailor-csv-export/pkg/ratelimit"
)

// app carries the state resolved before any subcommand runs.
type app struct {
	envFile string
	cfg     *config.Config
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "teamtailor-export",
		Short: "Export Teamtailor candidates and job applications as CSV",
		Long: `Export every Teamtailor candidate together with their job applications
as one CSV document: one row per job application, or a single row with empty
job application columns for candidates without any.

Configuration comes from flags, the environment and an optional .env file.
Existing environment variables take precedence over the .env file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "env file to load if present")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.Int("max-pages", pagination.DefaultConfig().MaxPages, "abort after this many pages (0 = unlimited)")
	flags.Float64("requests-per-second", client.DefaultConfig().RequestsPerSecond, "upstream request rate (0 = unthrottled)")
	flags.String("redis-url", "", "redis address for shared rate limit state (optional)")

	rootCmd.AddCommand(newServeCmd(a), newExportCmd(a))

	return rootCmd
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	return nil
}

// openTracker connects the rate limit tracker when Redis is configured.
// The returned close function is never nil.
func (a *app) openTracker() (*redis.Client, *ratelimit.Tracker, func(), error) {
	opts, err := a.cfg.RedisOptions()
	if err != nil || opts == nil {
		return nil, nil, func() {}, err
	}

	redisClient := redis.NewClient(opts)
	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger(logging.ComponentRateLimit))
	return redisClient, tracker, func() { _ = redisClient.Close() }, nil
}

func newExporter(clientCfg client.Config, pageCfg pagination.Config) (*export.Exporter, error) {
	teamtailor, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create teamtailor client: %w", err)
	}
	return export.New(pagination.NewDriver(teamtailor, pageCfg)), nil
}
