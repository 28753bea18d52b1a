package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// requestID prefers the id assigned by chi's RequestID middleware and falls
// back to the caller's X-Request-Id header.
func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(middleware.RequestIDHeader)
}
