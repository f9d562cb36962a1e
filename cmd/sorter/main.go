package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bouncer-harness/internal/cli"
	"bouncer-harness/internal/harness"
	"bouncer-harness/internal/monitor"
)

const usage = "Usage: sorter <csvFile>"

var (
	configPath  string
	dryRun      bool
	metricsFile string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:          "sorter <csvFile>",
		Short:        "Move tested files into Passed, Failed and Timedout directories",
		Args:         cli.MinArgs(1, usage),
		SilenceUsage: true,
		RunE:         run,
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "Config file (default $"+cli.ConfigEnv+" or "+cli.DefaultConfigFile+")")
	f.BoolVar(&dryRun, "dry-run", false, "Log planned moves without renaming anything")
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
	report, err := harness.NewSorter(cfg.Harness.PassCodes, dryRun, metrics).Sort(ctx, args[0])

	if cfg.Metrics.Enabled {
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Error().Err(werr).Msg("metrics export failed")
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("sort failed")
		return err
	}
	if report.Stopped {
		log.Warn().Int("line", report.StoppedLine).Msg("sorting stopped early, rerun the batch before sorting the rest")
	}
	return nil
}
