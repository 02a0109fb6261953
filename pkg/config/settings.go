// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tracerequests/core/pkg/appconsts"
	"github.com/tracerequests/core/pkg/logging"
)

// Settings defines the global configuration for the application.
type Settings struct {
	listenAddress   string
	upstream        string
	baseName        string
	maxFileLines    int
	maxFolderFiles  int
	settingsBackend Backend
	settingsPath    string
	hostVersion     string
	metrics         bool
	debug           bool
	logLevel        string
	logFormat       string
	logFile         string
	shutdownTimeout time.Duration
	rateLimit       float64
	rateBurst       int
	fs              afero.Fs
	cmd             *cobra.Command
}

var (
	globalSettings *Settings
	once           sync.Once
)

// GlobalSettings returns the singleton instance of the global settings.
func GlobalSettings() *Settings {
	once.Do(func() {
		globalSettings = &Settings{}
	})
	return globalSettings
}

// Load reads the settings from viper (flags, environment) and initializes
// the global logger.
//
// Parameters:
//   - cmd: The command whose flags were bound with BindFlags.
//   - fs: The filesystem used for the log file and the file settings backend.
//
// Returns an error when a value is invalid or the host version is not
// supported.
func (s *Settings) Load(cmd *cobra.Command, fs afero.Fs) error {
	s.cmd = cmd
	s.fs = fs

	s.debug = viper.GetBool("debug")
	s.logLevel = viper.GetString("log-level")
	s.logFormat = viper.GetString("log-format")
	s.logFile = viper.GetString("logfile")

	var logOutput io.Writer = os.Stdout
	if s.logFile != "" {
		f, err := fs.OpenFile(s.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open logfile: %w", err)
		}
		logOutput = f
	}
	logging.Init(s.LogLevel(), logOutput, s.logFormat)
	if _, ok := logging.ParseLevel(s.logLevel); !ok {
		logging.GetLogger().Warn(
			fmt.Sprintf("Invalid log level specified: '%s'. Defaulting to INFO.", s.logLevel),
		)
	}

	s.listenAddress = viper.GetString("listen-address")
	s.upstream = viper.GetString("upstream")
	s.baseName = viper.GetString("base-name")
	s.maxFileLines = viper.GetInt("max-file-lines")
	s.maxFolderFiles = viper.GetInt("max-folder-files")
	s.settingsBackend = Backend(strings.ToLower(viper.GetString("settings-backend")))
	s.settingsPath = viper.GetString("settings-path")
	s.hostVersion = viper.GetString("host-version")
	s.metrics = viper.GetBool("metrics")
	s.shutdownTimeout = viper.GetDuration("shutdown-timeout")
	s.rateLimit = viper.GetFloat64("rate-limit")
	s.rateBurst = viper.GetInt("rate-burst")

	if s.maxFileLines <= 0 {
		return fmt.Errorf("max-file-lines must be positive, got %d", s.maxFileLines)
	}
	if s.maxFolderFiles <= 0 {
		return fmt.Errorf("max-folder-files must be positive, got %d", s.maxFolderFiles)
	}
	if s.rateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %g", s.rateLimit)
	}
	if s.rateLimit > 0 && s.rateBurst <= 0 {
		return fmt.Errorf("rate-burst must be positive when rate limiting, got %d", s.rateBurst)
	}
	if !s.settingsBackend.Valid() {
		return fmt.Errorf("unknown settings backend %q", s.settingsBackend)
	}
	if err := appconsts.CheckHostVersion(s.hostVersion); err != nil {
		return err
	}
	return nil
}

// ListenAddress returns the proxy listen address.
func (s *Settings) ListenAddress() string {
	return s.listenAddress
}

// Upstream returns the URL of the fronted server.
func (s *Settings) Upstream() string {
	return s.upstream
}

// BaseName returns the base name of the trace files.
func (s *Settings) BaseName() string {
	return s.baseName
}

// MaxFileLines returns the rotation threshold.
func (s *Settings) MaxFileLines() int {
	return s.maxFileLines
}

// MaxFolderFiles returns the retention bound.
func (s *Settings) MaxFolderFiles() int {
	return s.maxFolderFiles
}

// SettingsBackend returns the backend persisting the trace files path.
func (s *Settings) SettingsBackend() Backend {
	return s.settingsBackend
}

// SettingsPath returns the location of the settings backend.
func (s *Settings) SettingsPath() string {
	return s.settingsPath
}

// HostVersion returns the declared version of the fronted server.
func (s *Settings) HostVersion() string {
	return s.hostVersion
}

// MetricsEnabled reports whether /metrics is served.
func (s *Settings) MetricsEnabled() bool {
	return s.metrics
}

// IsDebug returns whether debug mode is enabled.
func (s *Settings) IsDebug() bool {
	return s.debug
}

// LogFormat returns the log format ("text" or "json").
func (s *Settings) LogFormat() string {
	return s.logFormat
}

// LogFile returns the path to the log file.
func (s *Settings) LogFile() string {
	return s.logFile
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (s *Settings) ShutdownTimeout() time.Duration {
	return s.shutdownTimeout
}

// RateLimit returns the per-client requests per second, 0 when disabled.
func (s *Settings) RateLimit() float64 {
	return s.rateLimit
}

// RateBurst returns the per-client burst size.
func (s *Settings) RateBurst() int {
	return s.rateBurst
}

// Fs returns the filesystem the settings were loaded with.
func (s *Settings) Fs() afero.Fs {
	return s.fs
}

// LogLevel returns the effective log level. Debug mode wins over log-level
// and unknown levels fall back to INFO.
func (s *Settings) LogLevel() slog.Level {
	if s.IsDebug() {
		return slog.LevelDebug
	}
	level, _ := logging.ParseLevel(s.logLevel)
	return level
}
