// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package health provides health check functionality.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
	"github.com/tracerequests/core/pkg/tracelog"
)

const (
	healthStatusGauge        = "health_check_status"
	healthCheckLatencyMetric = "health_check_latency_seconds"

	// CheckTraceFolder is the name of the trace folder check.
	CheckTraceFolder = "trace-folder"
	// CheckUpstream is the name of the upstream reachability check.
	CheckUpstream = "upstream"
)

var upstreamClient = &http.Client{Timeout: 5 * time.Second}

// NewChecker creates the health checker of the proxy: the trace folder must
// accept new files (when tracing is enabled) and the upstream must answer
// HTTP requests (when configured).
func NewChecker(writer *tracelog.Writer, upstream string) health.Checker {
	checks := []health.Check{
		{Name: CheckTraceFolder, Check: traceFolderCheck(writer)},
	}
	if upstream != "" {
		checks = append(checks, health.Check{Name: CheckUpstream, Check: upstreamCheck(upstream)})
	}

	var lastStatus health.AvailabilityStatus
	var lastStatusMu sync.Mutex

	opts := []health.CheckerOption{
		health.WithCacheDuration(1 * time.Second),
		health.WithTimeout(10 * time.Second),
		health.WithStatusListener(func(_ context.Context, state health.CheckerState) {
			lastStatusMu.Lock()
			prev := lastStatus
			lastStatus = state.Status
			lastStatusMu.Unlock()
			if prev == state.Status {
				return
			}
			metrics.SetGauge(healthStatusGauge, lo.Ternary[float32](state.Status == health.StatusUp, 1, 0))
			logging.GetLogger().Info("health status changed", "status", state.Status)
		}),
	}
	for _, check := range checks {
		opts = append(opts, health.WithCheck(withLatency(check)))
	}
	return health.NewChecker(opts...)
}

// NewHandler serves checker results as JSON; 503 when a check fails.
func NewHandler(checker health.Checker) http.Handler {
	return health.NewHandler(checker)
}

func withLatency(check health.Check) health.Check {
	original := check.Check
	check.Check = func(ctx context.Context) error {
		start := time.Now()
		err := original(ctx)
		metrics.AddSample([]string{healthCheckLatencyMetric, check.Name}, float32(time.Since(start).Seconds()))
		return err
	}
	return check
}

func traceFolderCheck(writer *tracelog.Writer) func(context.Context) error {
	return func(_ context.Context) error {
		folder := writer.Folder()
		if folder == "" {
			// Tracing is disabled, nothing to verify.
			return nil
		}
		f, err := afero.TempFile(writer.Fs(), folder, ".healthcheck-")
		if err != nil {
			return fmt.Errorf("trace folder %s is not writable: %w", folder, err)
		}
		name := f.Name()
		_ = f.Close()
		if err := writer.Fs().Remove(name); err != nil {
			return fmt.Errorf("failed to clean up %s: %w", name, err)
		}
		return nil
	}
}

// upstreamCheck only verifies that the upstream answers; any status code
// counts since QGIS Server rejects parameterless requests.
func upstreamCheck(upstream string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream, nil)
		if err != nil {
			return fmt.Errorf("failed to create upstream health request: %w", err)
		}
		resp, err := upstreamClient.Do(req)
		if err != nil {
			return fmt.Errorf("upstream %s unreachable: %w", upstream, err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
}
