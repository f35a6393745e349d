package middlewares

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/airform-sync/log"
)

// AccessLog logs one line per request, at debug level for successful ones.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		entry := log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   m.Code,
			"bytes":    m.Written,
			"duration": m.Duration,
			"request":  middleware.GetReqID(r.Context()),
		})
		switch {
		case m.Code >= 500:
			entry.Error("request")
		case m.Code >= 400:
			entry.Info("request")
		default:
			entry.Debug("request")
		}
	})
}
