// Package cli holds the bootstrap shared by the harness commands: logging,
// config discovery and positional argument checks.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bouncer-harness/internal/config"
)

const (
	// ConfigEnv names the config file when --config is not given.
	ConfigEnv = "HARNESS_CONFIG"
	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "harness.yaml"
)

// ErrUsage is returned when positional arguments are missing.
var ErrUsage = errors.New("wrong number of arguments")

// SetupLogging configures the global zerolog logger. Output is JSON when
// ENV=production and a console writer on stderr otherwise.
func SetupLogging(level string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// LoadConfig resolves the config file from path, $HARNESS_CONFIG, then
// harness.yaml in the working directory, and falls back to defaults when
// none applies. It returns the file actually read, or "" for defaults.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path == "" {
		return config.DefaultConfig(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Bootstrap sets up logging and loads the config. A non-empty level
// overrides logging.level from the file.
func Bootstrap(configPath, level string) (*config.Config, error) {
	if err := SetupLogging(level); err != nil {
		return nil, err
	}
	cfg, used, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	} else if err := SetupLogging(cfg.Logging.Level); err != nil {
		return nil, err
	}

	if used == "" {
		log.Debug().Msg("no config file found, using defaults")
	} else {
		log.Debug().Str("path", used).Msg("loaded config")
	}
	return cfg, nil
}

// MinArgs is a cobra.PositionalArgs that prints usage to the command's
// stdout and fails when fewer than n arguments were given. Extra arguments
// are ignored.
func MinArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) >= n {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), usage)
		return fmt.Errorf("%w: want at least %d, got %d", ErrUsage, n, len(args))
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
