package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// responseWriter captures the status code written by the handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware tracks request timing and metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		// Skip the metrics endpoints themselves to avoid polluting metrics
		if path == "/health" || path == "/api/v1/metrics/summary" {
			next.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		wrappedWriter := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrappedWriter, r)

		trace := RequestTrace{
			RequestID:     uuid.New().String(),
			Method:        r.Method,
			Path:          path,
			Status:        wrappedWriter.statusCode,
			StartTime:     startTime,
			EndTime:       time.Now(),
			TotalDuration: time.Since(startTime),
		}
		if wrappedWriter.statusCode >= 400 {
			trace.Error = http.StatusText(wrappedWriter.statusCode)
		}

		GetMetrics().RecordTrace(trace)
	})
}
