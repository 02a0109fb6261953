// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tracerequests/core/pkg/consts"
	"github.com/tracerequests/core/pkg/tracelog"
)

// EnvPrefix is the prefix of every environment variable mirrored from a flag.
const EnvPrefix = "TRACEREQUESTS"

// BindRootFlags binds the global and persistent command-line flags to the Viper configuration registry.
//
// Parameters:
//   - cmd: The command to which the persistent flags are attached.
//
// Exits the application with status code 1 if a flag cannot be bound.
func BindRootFlags(cmd *cobra.Command) {
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	pf := cmd.PersistentFlags()
	pf.String("listen-address", consts.DefaultListenAddress, "Address the tracing proxy listens on. Env: TRACEREQUESTS_LISTEN_ADDRESS")
	pf.Bool("debug", false, "Enable debug logging. Env: TRACEREQUESTS_DEBUG")
	pf.String("log-level", "info", "Set the log level (debug, info, warn, error). Env: TRACEREQUESTS_LOG_LEVEL")
	pf.String("log-format", "text", "Set the log format (text, json). Env: TRACEREQUESTS_LOG_FORMAT")
	pf.String("logfile", "", "Path to a file to write logs to. If not set, logs are written to stdout.")

	bindAll(pf, "listen-address", "debug", "log-level", "log-format", "logfile")
}

// BindServerFlags binds the flags of the serving command.
func BindServerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("upstream", "", "URL of the QGIS server requests are forwarded to. Env: TRACEREQUESTS_UPSTREAM")
	f.String("base-name", tracelog.DefaultBaseName, "Base name of the trace files. Env: TRACEREQUESTS_BASE_NAME")
	f.Int("max-file-lines", tracelog.DefaultMaxFileLines, "Number of records after which a trace file is rotated. Env: TRACEREQUESTS_MAX_FILE_LINES")
	f.Int("max-folder-files", tracelog.DefaultMaxFolderFiles, "Maximum number of trace files kept in the trace folder. Env: TRACEREQUESTS_MAX_FOLDER_FILES")
	f.String("settings-backend", string(BackendFile), "Where the trace files path is persisted (file, sqlite, redis, memory). Env: TRACEREQUESTS_SETTINGS_BACKEND")
	f.String("settings-path", "tracerequests.yaml", "Settings file, SQLite database path or Redis URL. Env: TRACEREQUESTS_SETTINGS_PATH")
	f.String("host-version", "", "Version of the fronted QGIS server, checked for compatibility. Env: TRACEREQUESTS_HOST_VERSION")
	f.Bool("metrics", true, "Expose Prometheus metrics on /metrics. Env: TRACEREQUESTS_METRICS")
	f.Duration("shutdown-timeout", 5*time.Second, "Graceful shutdown timeout. Env: TRACEREQUESTS_SHUTDOWN_TIMEOUT")
	f.Float64("rate-limit", 0, "Requests per second allowed per client, 0 disables limiting. Env: TRACEREQUESTS_RATE_LIMIT")
	f.Int("rate-burst", 20, "Burst size allowed per client when rate limiting. Env: TRACEREQUESTS_RATE_BURST")

	bindAll(f, "upstream", "base-name", "max-file-lines", "max-folder-files", "settings-backend",
		"settings-path", "host-version", "metrics", "shutdown-timeout", "rate-limit", "rate-burst")
}

// BindFlags binds both root and server-specific command line flags.
func BindFlags(cmd *cobra.Command) {
	BindRootFlags(cmd)
	BindServerFlags(cmd)
}

func bindAll(fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, fs.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
}
