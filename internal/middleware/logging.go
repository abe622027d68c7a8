// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// viewerIDKey is the context key for the authenticated viewer (referrer) ID.
type viewerIDKey struct{}

// requestLogKey is the context key for the per-request log fields.
type requestLogKey struct{}

// requestLog collects fields set by inner handlers so the logging middleware
// can read them after the request completes.
type requestLog struct {
	mu        sync.Mutex
	viewerID  string
	errorCode string
}

func requestLogFrom(ctx context.Context) *requestLog {
	rl, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return rl
}

// SetViewerID stores the authenticated viewer ID in the context.
// Called by Authenticate after validating the token.
func SetViewerID(ctx context.Context, viewerID string) context.Context {
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		rl.viewerID = viewerID
		rl.mu.Unlock()
	}
	return context.WithValue(ctx, viewerIDKey{}, viewerID)
}

// GetViewerID retrieves the viewer ID from context. Returns empty string if not present.
func GetViewerID(ctx context.Context) string {
	if id, ok := ctx.Value(viewerIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetErrorCode records an error code for the request log.
// Handlers call it when writing an error response.
func SetErrorCode(ctx context.Context, code string) context.Context {
	if rl := requestLogFrom(ctx); rl != nil {
		rl.mu.Lock()
		rl.errorCode = code
		rl.mu.Unlock()
		return ctx
	}
	return context.WithValue(ctx, requestLogKey{}, &requestLog{errorCode: code})
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	rl := requestLogFrom(ctx)
	if rl == nil {
		return ""
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.errorCode
}

// responseWriter wraps http.ResponseWriter to capture status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

// WriteHeader captures the status code. Only the first call counts.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// Production logs JSON at info level; everything else logs text at debug level.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging logs each request with method, path, status, latency (ms), size,
// request ID, viewer ID (if authenticated) and error_code (for 4xx/5xx).
//
// A panicking handler produces no log entry.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rl := &requestLog{}
			r = r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl))
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}

			rl.mu.Lock()
			viewerID, errorCode := rl.viewerID, rl.errorCode
			rl.mu.Unlock()

			if viewerID != "" {
				attrs = append(attrs, slog.String("viewer_id", viewerID))
			}
			if rw.statusCode >= 400 && errorCode != "" {
				attrs = append(attrs, slog.String("error_code", errorCode))
			}

			switch {
			case rw.statusCode >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
			case rw.statusCode >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
