// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package consts defines common constants used across the application.
package consts

const (
	// ContentTypeApplicationJSON defines the standard "application/json" content type.
	ContentTypeApplicationJSON = "application/json"
	// ContentTypeTextPlain defines the "text/plain" content type used for trace dumps.
	ContentTypeTextPlain = "text/plain; charset=utf-8"
	// ContentTypeTextHTML defines the "text/html" content type.
	ContentTypeTextHTML = "text/html; charset=utf-8"
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"
	// HeaderRequestID is the header carrying the per-request correlation ID.
	HeaderRequestID = "X-Request-Id"
	// DefaultListenAddress is the default address the proxy binds to.
	DefaultListenAddress = ":8080"
	// MetricsPath is the route serving Prometheus metrics.
	MetricsPath = "/metrics"
	// HealthPath is the route serving the health report.
	HealthPath = "/healthz"
)
