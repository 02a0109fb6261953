// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
)

var (
	metricHTTPRequests = []string{"http", "requests"}
	metricHTTPLatency  = []string{"http", "latency"}
)

// LoggingMiddleware writes one access log line per request and records the
// request count and latency by status code.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.statusCode()
		duration := time.Since(start)
		labels := []metrics.Label{{Name: "status", Value: strconv.Itoa(status)}}
		metrics.IncrCounterWithLabels(metricHTTPRequests, 1, labels)
		metrics.MeasureSinceWithLabels(metricHTTPLatency, start, labels)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logging.GetLogger().Log(r.Context(), level, "HTTP request",
			"component", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration", duration,
			"remote_addr", r.RemoteAddr,
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
