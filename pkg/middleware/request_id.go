// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tracerequests/core/pkg/consts"
)

type requestIDKey struct{}

// RequestIDMiddleware makes sure every request carries an X-Request-Id. An
// incoming ID is kept; otherwise a random UUID is generated. The ID is set on
// the request (so the upstream sees it), on the response and in the context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(consts.HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(consts.HeaderRequestID, id)
		}
		w.Header().Set(consts.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFromContext returns the ID stored by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
