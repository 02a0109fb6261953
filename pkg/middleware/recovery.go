// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/tracerequests/core/pkg/logging"
)

// RecoveryMiddleware recovers from panics in the handler chain, logs the panic,
// and returns a generic 500 Internal Server Error response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logging.GetLogger().Error("Panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"url", r.URL.String(),
					"method", r.Method,
					"request_id", RequestIDFromContext(r.Context()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
