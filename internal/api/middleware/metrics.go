package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/provsalt/eldercare/internal/metrics"
)

// Metrics returns middleware that records Prometheus metrics. The chi
// response wrapper keeps http.Hijacker intact so the WebSocket upgrade
// still works behind it.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses id segments to avoid high cardinality in metrics.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/api/chats/") && len(path) > len("/api/chats/") {
		rest := path[len("/api/chats/"):]
		if strings.Contains(rest, "/") {
			return "/api/chats/:chatId/:messageId"
		}
		return "/api/chats/:chatId"
	}
	return path
}
