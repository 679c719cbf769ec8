package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/google/uuid"
)

// RequestID returns the id RequestLogger assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestAttrs are the request fields attached to every log line.
func RequestAttrs(r *http.Request) []any {
	return []any{
		"request_id", RequestID(r.Context()),
		"ip", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
	}
}

func LogDebug(r *http.Request, msg string, args ...any) {
	slog.Debug(msg, append(RequestAttrs(r), args...)...)
}

func LogInfo(r *http.Request, msg string, args ...any) {
	slog.Info(msg, append(RequestAttrs(r), args...)...)
}

func LogWarn(r *http.Request, msg string, args ...any) {
	slog.Warn(msg, append(RequestAttrs(r), args...)...)
}

func LogError(r *http.Request, msg string, args ...any) {
	slog.Error(msg, append(RequestAttrs(r), args...)...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags each request with an id (echoed in X-Request-ID) and
// writes one access log line when it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		LogInfo(r, "request", "status", rec.status, "duration_ms", time.Since(start).Milliseconds())
	})
}

// Recoverer turns a handler panic into a 500 response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				LogError(r, "handler panic", "panic", rv)
				utils.WriteError(w, http.StatusInternalServerError, utils.InternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
