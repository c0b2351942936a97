package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zieneks/teamtailor-csv-export/pkg/logging"
)

func newExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one candidates export",
		Long: `Fetch every candidate page and write the CSV document to --out,
or to stdout when --out is "-". Nothing is written when the export fails.`,
		Example: `  teamtailor-export export --out candidates.csv
  TEAMTAILOR_API_KEY=... teamtailor-export export > candidates.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.export(cmd.Context(), out, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", `output file ("-" for stdout)`)
	cmd.Flags().Duration("export-timeout", 5*time.Minute, "upper bound for the export (0 = none)")

	return cmd
}

func (a *app) export(ctx context.Context, out string, stdout io.Writer) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	_, tracker, closeRedis, err := a.openTracker()
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

	if a.cfg.ExportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ExportTimeout)
		defer cancel()
	}

	result, err := exporter.Export(ctx, a.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if out == "-" {
		_, err = io.WriteString(stdout, result.Document)
		return err
	}

	if err := os.WriteFile(out, []byte(result.Document), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	logger.Info().
		Str("file", out).
		Int("rows", result.Rows).
		Msg("Export written")

	return nil
}
