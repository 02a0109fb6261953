// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tracerequests/core/pkg/metrics"
	"golang.org/x/time/rate"
)

var metricRateLimited = []string{"http", "rate_limited"}

// idleClientTTL is how long a client without requests keeps its limiter.
const idleClientTTL = 5 * time.Minute

// RateLimiter limits requests per client address. Idle clients are forgotten
// after five minutes.
type RateLimiter struct {
	limiters *cache.Cache
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second per
// client with bursts of up to burst requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return newRateLimiter(rps, burst, idleClientTTL)
}

func newRateLimiter(rps float64, burst int, idleTTL time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(idleTTL, 2*idleTTL),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Handler wraps next and answers 429 Too Many Requests when the client is
// over its budget.
func (m *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter(clientIP(r.RemoteAddr)).Allow() {
			metrics.IncrCounter(metricRateLimited, 1)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimiter) limiter(ip string) *rate.Limiter {
	if val, found := m.limiters.Get(ip); found {
		limiter := val.(*rate.Limiter)
		// Get does not extend the expiry; an active client keeps its bucket.
		m.limiters.SetDefault(ip, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(m.rps, m.burst)
	// Add fails when a concurrent request registered the client first.
	if err := m.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		if val, found := m.limiters.Get(ip); found {
			return val.(*rate.Limiter)
		}
	}
	return limiter
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
