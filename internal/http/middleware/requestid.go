package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// Inbound ids longer than this are replaced rather than truncated, so a
// request id in the logs is always either client-supplied verbatim or ours.
const maxInboundRequestIDLength = 64

// RequestID attaches a request id to the context and echoes it in the
// X-Request-Id response header. A well-formed client-supplied id is kept
// so callers can correlate across retries.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > maxInboundRequestIDLength {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by RequestID, or "unknown"
// outside a request scope.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	if id == "" {
		return "unknown"
	}
	return id
}
