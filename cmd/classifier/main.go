package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bouncer-harness/internal/cli"
	"bouncer-harness/internal/config"
	"bouncer-harness/internal/harness"
	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/storage"
)

const usage = "Usage: classifier <extension> <fileDirectory> <logDirectory> <outputFile>"

var (
	configPath  string
	excludes    []string
	metricsFile string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:          "classifier <extension> <fileDirectory> <logDirectory> <outputFile>",
		Short:        "Rebuild a result table from the log directories of an earlier run",
		Args:         cli.MinArgs(4, usage),
		SilenceUsage: true,
		RunE:         run,
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "Config file (default $"+cli.ConfigEnv+" or "+cli.DefaultConfigFile+")")
	f.StringSliceVar(&excludes, "exclude", nil, "Glob of corpus paths to skip (repeatable)")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&logLevel, "log-level", "", "Log level (default from config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := cli.Bootstrap(configPath, logLevel)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Harness.Excludes = append(cfg.Harness.Excludes, excludes...)
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	metrics := monitor.NewMetrics()
	classifier := harness.NewClassifier(cfg.Harness.Excludes, cfg.Harness.PassCodes, metrics)

	report, err := classifier.Classify(ctx, harness.ClassifyOptions{
		Extension: args[0],
		Root:      args[1],
		LogRoot:   args[2],
		Output:    args[3],
	})
	if err != nil {
		log.Error().Err(err).Msg("classification failed")
		return err
	}

	if cfg.Database.DSN != "" {
		auditClassification(ctx, cfg.Database, args, report)
	}

	if cfg.Metrics.Enabled {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error().Err(err).Msg("metrics export failed")
		}
	}
	return nil
}

// auditClassification stores a classifier pass as its own run. Failures are
// logged and never fail the command.
func auditClassification(ctx context.Context, dbCfg config.DatabaseConfig, args []string, report *harness.Report) {
	db, err := storage.New(ctx, dbCfg.DSN, dbCfg.MaxOpenConns, dbCfg.ConnMaxLifetime)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		return
	}
	defer db.Close()

	runID := uuid.New().String()
	now := time.Now()
	if err := db.StartRun(ctx, &storage.Run{
		ID: runID, Command: "classify", Extension: args[0], Root: args[1], Output: args[3], StartedAt: now,
	}); err != nil {
		log.Warn().Err(err).Msg("recording run failed")
		return
	}

	w := storage.NewAuditWriter(db, dbCfg.BufferSize)
	w.Start()
	harness.AuditRecords(w, runID, report.Records)
	w.Flush(10 * time.Second)

	if err := db.FinishRun(ctx, runID, len(report.Records), time.Now()); err != nil {
		log.Warn().Err(err).Msg("recording run completion failed")
	}
}
