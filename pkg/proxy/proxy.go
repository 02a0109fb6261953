// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package proxy drives the trace controller from an HTTP server: every
// request is recorded, forwarded to the upstream QGIS server (unless it
// addresses the control service) and its response recorded on the way back.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
	"github.com/tracerequests/core/pkg/trace"
)

// MaxFormBodySize bounds the urlencoded POST body read to extract parameters.
const MaxFormBodySize = 10 << 20

var (
	metricRequests = []string{"proxy", "requests"}
	metricLatency  = []string{"proxy", "latency"}
)

// Handler is the traced entry point of the proxy.
type Handler struct {
	controller *trace.Controller
	upstream   http.Handler
	log        *slog.Logger
}

// NewHandler creates a Handler forwarding non-control requests to upstream.
func NewHandler(controller *trace.Controller, upstream http.Handler) *Handler {
	return &Handler{
		controller: controller,
		upstream:   upstream,
		log:        logging.GetLogger().With("component", "proxy"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	values, err := requestValues(r)
	if err != nil {
		h.log.Warn("Failed to read request parameters", "error", err)
	}
	req := trace.NewRequest(r.Method, fullURL(r), r.Header.Clone(), values)
	h.controller.OnRequest(ctx, req)

	resp := trace.NewBufferedResponse()
	intercepted := h.controller.Intercepts(req.Params)
	if !intercepted {
		h.upstream.ServeHTTP(resp, r)
	}
	h.controller.OnResponseComplete(ctx, req, resp)

	if err := resp.CopyTo(w); err != nil {
		h.log.Debug("Failed to write response to client", "error", err)
	}

	labels := []metrics.Label{{Name: "target", Value: lo.Ternary(intercepted, "controller", "upstream")}}
	metrics.IncrCounterWithLabels(metricRequests, 1, labels)
	metrics.MeasureSinceWithLabels(metricLatency, start, labels)
}

// NewReverseProxy returns a handler forwarding to target. Upstream failures
// become 502 responses so they are traced like any other response.
func NewReverseProxy(target string) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme and host are required", target)
	}

	log := logging.GetLogger().With("component", "proxy")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Upstream request failed", "upstream", u.Host, "url", r.URL.String(), "error", err)
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}, nil
}

// requestValues returns the query parameters, followed by the body
// parameters of urlencoded POST requests. The body is restored for the
// upstream.
func requestValues(r *http.Request) (url.Values, error) {
	values := r.URL.Query()
	if r.Method != http.MethodPost || r.Body == nil {
		return values, nil
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return values, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxFormBodySize))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
	if err != nil {
		return values, fmt.Errorf("failed to read form body: %w", err)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return values, fmt.Errorf("failed to parse form body: %w", err)
	}
	for k, vs := range form {
		values[k] = append(values[k], vs...)
	}
	return values, nil
}

// fullURL reconstructs the URL the client asked for.
func fullURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host
	return &u
}
