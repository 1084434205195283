package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/pointops/internal/service"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with an id (caller-supplied or generated),
// propagates it through the context for log correlation, and echoes it in
// the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(service.WithRequestID(r.Context(), id)))
	})
}

// Logging writes one line per request with the request id and latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s %s (%s)", service.RequestID(r.Context()), r.Method, r.URL.Path, time.Since(start))
	})
}
