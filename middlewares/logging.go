package middlewares

import (
	"net/http"
	"time"

	"gateway/app"
	"gateway/logging"
	"gateway/metrics"
	"gateway/writer"
)

// LoggingMiddleware is an HTTP middleware that logs requests and responses.
// It logs the request line, headers, response status code, and duration of the request.
// It also tracks metrics such as active connections and data transferred.
// The request body is left untouched: it is streamed to the target that serves it.
//
// Parameters:
// - next: The next http.Handler to be called.
// - gw: The gateway instance containing the configuration and logger.
//
// Returns:
// - http.Handler: A handler that logs requests, responses, and metrics based on the provided configuration.
func LoggingMiddleware(next http.Handler, gw *app.Gateway) http.Handler {
	cfg := gw.Config

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Increment the active connections metric if metrics are enabled
		if cfg.Metrics.Enabled {
			metrics.UpdateActiveConnections(true)
			defer metrics.UpdateActiveConnections(false) // Ensure decrement after the request is processed
		}

		verbose := cfg.Logging.Enabled && cfg.Logging.Verbose

		var opts []writer.WriterOption
		if verbose {
			opts = append(opts, writer.WithBodyCapture(writer.DefaultMaxCaptureSize))
		}

		// Create a custom ResponseWriter to capture the response status code and bytes written
		lrw := writer.NewResponseWriter(w, opts...)

		// Record and log from a defer so a handler aborted by a panic still
		// shows up in the access log and metrics.
		defer func() { record(gw, r, lrw, time.Since(start)) }()

		next.ServeHTTP(lrw, r)
	})
}

// record writes the access log line and request metrics for one request.
func record(gw *app.Gateway, r *http.Request, lrw *writer.ResponseWriter, duration time.Duration) {
	cfg := gw.Config

	status := lrw.Status()
	target := lrw.Target
	if target == "" {
		target = metrics.NoTarget
	}

	if cfg.Metrics.Enabled {
		metrics.RecordRequest(target, r.Method, status, duration.Seconds())
		// Record data transferred for inbound and outbound traffic
		metrics.RecordDataTransferred("inbound", r.ContentLength)
		metrics.RecordDataTransferred("outbound", lrw.BytesWritten)
	}

	if !cfg.Logging.Enabled {
		return
	}

	if cfg.Logging.Verbose {
		logging.LogRequestVerbose(gw.Logger, r, target, status, duration)
		logging.LogResponse(gw.Logger, lrw)
	} else {
		logging.LogRequestCompact(gw.Logger, r, target, status, duration)
	}
}
