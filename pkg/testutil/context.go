package testutil

import (
	"net/http"
	"time"

	"cradle/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, simulating what the
// request-time middleware does for live traffic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID attaches a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
