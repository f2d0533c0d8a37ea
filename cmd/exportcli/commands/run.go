// Package commands implements CLI command handlers for exportcli.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medstream-labs/export-analytics-cli/internal/config"
	"github.com/medstream-labs/export-analytics-cli/internal/export"
	"github.com/medstream-labs/export-analytics-cli/internal/export/httpapi"
	"github.com/medstream-labs/export-analytics-cli/internal/logger"
	"github.com/medstream-labs/export-analytics-cli/internal/pipeline"
)

// RunCommand holds configuration for the run command.
type RunCommand struct {
	baseURL       string
	skipMalformed bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run <export-id>",
		Short: "Analyze one export and print its report",
		Long: "Run resolves the export id into its files, streams every file in order,\n" +
			"and prints the aggregated per-patient event counts as JSON on stdout.\n" +
			"The run is all or nothing: on any failure nothing is written to stdout\n" +
			"and the exit code is 1.",
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.baseURL, "base-url", "", "Export API base URL (overrides EXPORT_BASE_URL)")
	cmd.Flags().BoolVar(&rc.skipMalformed, "skip-malformed", false,
		"Skip malformed rows instead of failing, reporting the skipped count")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	exportID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if rc.baseURL != "" {
		cfg.Export.BaseURL = rc.baseURL
	}
	if rc.skipMalformed {
		cfg.Pipeline.OnMalformed = "skip"
	}

	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := validateExportID(exportID, cfg.Export.KnownExports); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Info("Interrupt received, aborting run")
			cancel()
		case <-ctx.Done():
		}
	}()

	client := httpapi.NewClient(cfg.Export, log)
	p, err := pipeline.NewPipeline(cfg, client, log)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, exportID)
	if err != nil {
		log.Error("Export analysis failed", zap.Error(err))
		return err
	}

	// The report is the only thing this command ever writes to stdout.
	if err := report.Encode(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	return nil
}

// validateExportID guards against typos before any network call. An empty
// allowlist disables the check.
func validateExportID(exportID string, known []string) error {
	if len(known) == 0 {
		return nil
	}
	for _, name := range known {
		if name == exportID {
			return nil
		}
	}
	return &export.DiscoveryError{
		ExportID: exportID,
		Reason:   fmt.Sprintf("not a known export (known: %s)", strings.Join(known, ", ")),
	}
}
