package handlers

import (
	"log/slog"
	"net/http"

	"gateway/app"
	"gateway/match"
	"gateway/metrics"
	"gateway/target"
	"gateway/writer"
)

const (
	InternalServerErrorMessage = "Internal Server Error"
	// NoMatchMessage is the body of the response sent when no target matches.
	NoMatchMessage = "No gateway target matched"
)

// NewHandler returns the gateway's root handler.
func NewHandler(gw *app.Gateway) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		GatewayHandler(gw, w, r)
	})
}

// GatewayHandler dispatches a request to the first target whose pattern
// matches it. Targets after the first match are never evaluated.
//
// Parameters:
// - gw: The gateway instance containing the targets, sessions and logger.
// - w: The HTTP response writer.
// - r: The HTTP request.
func GatewayHandler(gw *app.Gateway, w http.ResponseWriter, r *http.Request) {
	lrw, ok := w.(*writer.ResponseWriter)
	if !ok {
		lrw = writer.NewResponseWriter(w)
	}

	if gw.Config.Metrics.Enabled && isMetricsEndpoint(r.URL.Path, gw.Config.Metrics.Path) {
		gw.Logger.Debug("Handling metrics endpoint")
		metrics.ExposeMetricsHandler().ServeHTTP(lrw, r)
		return
	}

	if isUpgradeRequest(r) && len(gw.Targets.UpgradeTargets()) > 0 {
		UpgradeHandler(gw, lrw, r)
		return
	}

	t, res, ok := gw.Targets.Lookup(match.ContextFromRequest(r))
	if !ok {
		writeNoMatch(lrw)
		return
	}
	lrw.Target = t.Descriptor().Name

	if gw.Sessions != nil && t.SessionEnabled() {
		var err error
		r, err = gw.Sessions.Begin(lrw, r)
		if err != nil {
			handleTargetError(gw, lrw, r, t, err)
			return
		}
	}

	if err := t.Handle(lrw, r, res); err != nil {
		handleTargetError(gw, lrw, r, t, err)
	}
}

// writeNoMatch answers a request no target matched. It is an expected
// outcome and is not logged.
func writeNoMatch(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(NoMatchMessage))
}

// handleTargetError reports a failure the target did not handle itself and
// answers 500 when the response has not started.
func handleTargetError(gw *app.Gateway, w *writer.ResponseWriter, r *http.Request, t target.Target, err error) {
	gw.Logger.Error("Target failed to handle request",
		slog.String("target", t.Descriptor().Name),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))

	if w.HeadersWritten() {
		return
	}
	http.Error(w, InternalServerErrorMessage, http.StatusInternalServerError)
}

// isMetricsEndpoint checks if the request path matches the configured metrics path.
//
// Parameters:
// - requestPath: The path of the incoming HTTP request.
// - metricsPath: The configured path for metrics.
//
// Returns:
// - bool: True if the request path matches the metrics path, false otherwise.
func isMetricsEndpoint(requestPath string, metricsPath string) bool {
	return requestPath == metricsPath
}
