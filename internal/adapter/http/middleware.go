package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// LoggingMiddleware logs each request under the id set by middleware.RequestID.
func LoggingMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			details := map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				details["trace_id"] = sc.TraceID().String()
			}
			logger.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, details)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug("http_response", "Request completed", requestID, map[string]interface{}{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

func RecoveryMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic_recovered", "Panic recovered", middleware.GetReqID(r.Context()), map[string]interface{}{
						"path": r.URL.Path,
					}, fmt.Errorf("%v", err))
					respondError(w, "Internal server error", http.StatusInternalServerError, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
