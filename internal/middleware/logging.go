package middleware

import (
	"net/http"
	"time"

	"cdr.dev/slog/v3"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Logger logs one line per request. Server errors are logged at warn level.
func Logger(log slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			// Probes are too chatty to log.
			if isProbe(r.URL.Path) && wrapped.statusCode == http.StatusOK {
				return
			}

			fields := []slog.Field{
				slog.F("method", r.Method),
				slog.F("path", r.URL.Path),
				slog.F("status_code", wrapped.statusCode),
				slog.F("took", time.Since(start)),
				slog.F("bytes", wrapped.written),
				slog.F("remote_addr", r.RemoteAddr),
				slog.F("user_agent", r.UserAgent()),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, slog.F("request_id", id))
			}

			logFn := log.Debug
			if wrapped.statusCode >= http.StatusInternalServerError {
				logFn = log.Warn
			}
			logFn(r.Context(), "http request", fields...)
		})
	}
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/readyz", "/livez", "/metrics":
		return true
	}
	return false
}
