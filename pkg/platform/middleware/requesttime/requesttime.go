// Package requesttime stamps each request with a single instant so the
// version bump, event and audit rows for one trigger share a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"dictkeys/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps requests using now. Handlers read it back through
// requestcontext.Now.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stamped := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(stamped))
		})
	}
}
