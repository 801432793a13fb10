package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gateway/app"
	"gateway/match"
	"gateway/writer"
)

// UpgradeHandler routes a connection upgrade. The upgrade-enabled proxy
// targets are scanned in registration order and only the first match claims
// the connection; an unclaimed upgrade gets the no-match response.
//
// Parameters:
// - gw: The gateway instance.
// - w: The response writer; it must support hijacking for the upgrade to succeed.
// - r: The upgrade request.
func UpgradeHandler(gw *app.Gateway, w *writer.ResponseWriter, r *http.Request) {
	ctx := match.ContextFromRequest(r)

	// Path and query are taken from the raw request target.
	if r.RequestURI != "" {
		if u, err := url.ParseRequestURI(r.RequestURI); err == nil {
			ctx.Path = u.Path
		}
	}

	for _, pt := range gw.Targets.UpgradeTargets() {
		res, ok := pt.Match(ctx)
		if !ok {
			continue
		}

		w.Target = pt.Descriptor().Name
		gw.Logger.Debug("Forwarding upgrade",
			slog.String("target", w.Target),
			slog.String("protocol", r.Header.Get("Upgrade")),
			slog.String("path", ctx.Path))

		if err := pt.ServeUpgrade(w, r, res); err != nil {
			handleTargetError(gw, w, r, pt, err)
		}
		return
	}

	writeNoMatch(w)
}

// isUpgradeRequest reports whether r asks to switch protocols.
func isUpgradeRequest(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" && headerHasToken(r.Header, "Connection", "upgrade")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
