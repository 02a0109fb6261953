// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tracerequests/core/pkg/app"
	"github.com/tracerequests/core/pkg/appconsts"
	"github.com/tracerequests/core/pkg/config"
	"github.com/tracerequests/core/pkg/logging"
)

var appRunner app.Runner = app.NewApplication()

// dotEnvFile is read before the flags are resolved so TRACEREQUESTS_*
// variables can live next to the binary.
var dotEnvFile = ".env"

// newRootCmd creates the main command. It binds the flags (mirrored by
// TRACEREQUESTS_* environment variables), loads the settings, initializes the
// logger and runs the tracing proxy until SIGINT or SIGTERM.
//
// It also adds the `version` and `health` subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          appconsts.Name,
		Short:        appconsts.Description,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(dotEnvFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GlobalSettings()
			if err := cfg.Load(cmd, afero.NewOsFs()); err != nil {
				return err
			}
			log := logging.GetLogger().With("service", appconsts.Name)
			log.Info("Configuration",
				"listen-address", cfg.ListenAddress(),
				"upstream", cfg.Upstream(),
				"settings-backend", cfg.SettingsBackend(),
				"settings-path", cfg.SettingsPath(),
				"max-file-lines", cfg.MaxFileLines(),
				"max-folder-files", cfg.MaxFolderFiles(),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := appRunner.Run(app.RunOptions{
				Ctx:             ctx,
				Fs:              cfg.Fs(),
				ListenAddress:   cfg.ListenAddress(),
				Upstream:        cfg.Upstream(),
				BaseName:        cfg.BaseName(),
				MaxFileLines:    cfg.MaxFileLines(),
				MaxFolderFiles:  cfg.MaxFolderFiles(),
				SettingsBackend: cfg.SettingsBackend(),
				SettingsPath:    cfg.SettingsPath(),
				Metrics:         cfg.MetricsEnabled(),
				ShutdownTimeout: cfg.ShutdownTimeout(),
				RateLimit:       cfg.RateLimit(),
				RateBurst:       cfg.RateBurst(),
			}); err != nil {
				log.Error("Application failed", "error", err)
				return err
			}
			log.Info("Shutdown complete.")
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of " + appconsts.Name,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appconsts.Name, appconsts.Version)
			if err != nil {
				return fmt.Errorf("failed to print version: %w", err)
			}
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Run a health check against a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return app.HealthCheck(cmd.OutOrStdout(), viper.GetString("listen-address"), timeout)
		},
	}
	healthCmd.Flags().Duration("timeout", 5*time.Second, "Timeout for the health check.")
	rootCmd.AddCommand(healthCmd)

	config.BindFlags(rootCmd)

	return rootCmd
}

// loadDotEnv exports the variables of path. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
