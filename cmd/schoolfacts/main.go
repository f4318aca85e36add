// Command schoolfacts builds the student fact table from the roster, grade
// and enrollment files and records every run in the monitor table.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schoolfacts/internal/config"
	"github.com/JonMunkholm/schoolfacts/internal/logging"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/source"
	"github.com/JonMunkholm/schoolfacts/internal/store"
)

var (
	envFile     string
	profilePath string
	logLevel    string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schoolfacts",
	Short: "Student fact table ETL",
	Long: "Extracts alumnos (CSV), calificaciones (JSON) and matriculas (XML), reconciles them into " +
		"the hechos fact table and appends one audit row per run to etl_monitor.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Overload so .env wins over the inherited environment
		if err := godotenv.Overload(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		}
		if profilePath != "" {
			os.Setenv("PROFILE_PATH", profilePath)
		}
		if logLevel != "" {
			os.Setenv("LOG_LEVEL", logLevel)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "YAML pipeline profile (overrides PROFILE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd, scheduleCmd, serveCmd, runsCmd)
}

// openRunner connects the store and builds a runner over the configured
// file source. The caller closes the returned store.
func openRunner(ctx context.Context) (*runner.Runner, store.Store, error) {
	st, err := store.Open(ctx, runner.StoreConfig(cfg.Store))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store ready",
		"driver", cfg.Store.Driver,
		"facts", cfg.Store.FactTable,
		"monitor", cfg.Store.MonitorTable,
	)

	src := source.NewFileSource(runner.SourceConfig(cfg.Source))
	return runner.New(cfg, src, st), st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
