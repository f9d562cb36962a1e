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
	"bouncer-harness/internal/corpus"
	"bouncer-harness/internal/harness"
	"bouncer-harness/internal/monitor"
	"bouncer-harness/internal/storage"
	"bouncer-harness/internal/tool"
)

const usage = "Usage: runner <extension> <rootDir> <outputFile>"

var (
	configPath  string
	toolPath    string
	subcommand  string
	timeout     time.Duration
	logRoot     string
	workers     int
	excludes    []string
	metricsFile string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:          "runner <extension> <rootDir> <outputFile>",
		Short:        "Run the bouncer import test over every file with the given extension",
		Args:         cli.MinArgs(3, usage),
		SilenceUsage: true,
		RunE:         run,
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "Config file (default $"+cli.ConfigEnv+" or "+cli.DefaultConfigFile+")")
	f.StringVar(&toolPath, "tool", "", "Import tool executable")
	f.StringVar(&subcommand, "subcommand", "", "Import tool subcommand")
	f.DurationVar(&timeout, "timeout", 0, "Per-file timeout")
	f.StringVar(&logRoot, "log-root", "", "Directory for per-file log directories (default log_<timestamp>)")
	f.IntVar(&workers, "workers", 0, "Concurrent tool invocations")
	f.StringSliceVar(&excludes, "exclude", nil, "Glob of corpus paths to skip (repeatable)")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&logLevel, "log-level", "", "Log level (default from config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags copies explicitly set flags over the file config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("tool") {
		cfg.Tool.Path = toolPath
	}
	if f.Changed("subcommand") {
		cfg.Tool.Subcommand = subcommand
	}
	if f.Changed("timeout") {
		cfg.Tool.Timeout = timeout
	}
	if f.Changed("log-root") {
		cfg.Harness.LogRoot = logRoot
	}
	if f.Changed("workers") {
		cfg.Harness.Workers = workers
	}
	if f.Changed("exclude") {
		cfg.Harness.Excludes = append(cfg.Harness.Excludes, excludes...)
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = metricsFile
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := cli.Bootstrap(configPath, logLevel)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	runID := uuid.New().String()
	metrics := monitor.NewMetrics()

	// Audit database (optional)
	var db *storage.DB
	var auditor harness.Auditor
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else {
			defer db.Close()
			w := storage.NewAuditWriter(db, cfg.Database.BufferSize)
			w.Start()
			defer w.Flush(10 * time.Second)
			auditor = w
		}
	}
	if db != nil {
		err := db.StartRun(ctx, &storage.Run{
			ID: runID, Command: "run", Extension: args[0], Root: args[1], Output: args[2], StartedAt: time.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("recording run failed, audit logging disabled")
			auditor = nil
		}
	}

	invoker := tool.NewRunner(tool.Options{
		Path:           cfg.Tool.Path,
		Subcommand:     cfg.Tool.Subcommand,
		LogDirEnv:      cfg.Tool.LogDirEnv,
		License:        cfg.Tool.License,
		Env:            cfg.Tool.Env,
		DefaultTimeout: cfg.Tool.Timeout,
	})
	runner := harness.NewRunner(invoker, harness.RunnerConfig{
		RunID:         runID,
		Timeout:       cfg.Tool.Timeout,
		Workers:       cfg.Harness.Workers,
		LogRoot:       cfg.Harness.LogRoot,
		Excludes:      cfg.Harness.Excludes,
		PassCodes:     cfg.Harness.PassCodes,
		Fingerprinter: corpus.NewFingerprinter(cfg.Harness.Fingerprint.BlockSize, cfg.Harness.Fingerprint.MaxBlocks),
	}, metrics, auditor)

	report, runErr := runner.Run(ctx, harness.RunOptions{Extension: args[0], Root: args[1], Output: args[2]})

	if auditor != nil && report != nil {
		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.FinishRun(finishCtx, runID, len(report.Records), time.Now()); err != nil {
			log.Warn().Err(err).Msg("recording run completion failed")
		}
		cancel()
	}

	if cfg.Metrics.Enabled {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error().Err(err).Msg("metrics export failed")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("batch failed")
	}
	return runErr
}
