package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// unmatchedRoute labels requests for paths the API does not serve.
const unmatchedRoute = "unmatched"

var staticRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// normalizePath maps a request path to its route pattern so metric labels and
// span names stay low cardinality, e.g. /responses/abc -> /responses/{id}.
// Paths the API does not serve collapse into a single label.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "requirements" && parts[1] != "" && parts[2] == "responses":
		return "/requirements/{id}/responses"
	case len(parts) == 2 && parts[0] == "responses" && parts[1] != "":
		return "/responses/{id}"
	case len(parts) == 3 && parts[0] == "referrers" && parts[1] != "" && parts[2] == "reputation":
		return "/referrers/{id}/reputation"
	}
	return unmatchedRoute
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// HTTPMetrics records request duration, sizes and counts per normalized route.
// /health and /ready are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
