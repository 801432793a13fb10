package writer

import (
	"net/http"
	"strings"
)

// CookieAccumulator owns the Set-Cookie values the gateway queued on a
// response before handing it to an upstream. The upstream's own Set-Cookie
// values are appended to them when the final headers are composed, so
// neither side overwrites the other.
type CookieAccumulator struct {
	queued []string
}

// TakeSetCookies moves the Set-Cookie values out of h into a new accumulator.
func TakeSetCookies(h http.Header) *CookieAccumulator {
	queued := h.Values("Set-Cookie")
	h.Del("Set-Cookie")
	return &CookieAccumulator{queued: append([]string(nil), queued...)}
}

// Queued returns the accumulated Set-Cookie values.
func (a *CookieAccumulator) Queued() []string {
	return a.queued
}

// CookieHeader renders the accumulated cookies as a request Cookie header
// value ("a=1; b=2"), dropping their attributes.
func (a *CookieAccumulator) CookieHeader() string {
	pairs := make([]string, 0, len(a.queued))
	for _, sc := range a.queued {
		pair, _, _ := strings.Cut(sc, ";")
		if pair = strings.TrimSpace(pair); pair != "" {
			pairs = append(pairs, pair)
		}
	}
	return strings.Join(pairs, "; ")
}

// AppendCookies adds the accumulated cookies to the Cookie header of an
// outbound request.
func (a *CookieAccumulator) AppendCookies(h http.Header) {
	extra := a.CookieHeader()
	if extra == "" {
		return
	}
	if original := strings.Join(h.Values("Cookie"), "; "); original != "" {
		h.Set("Cookie", original+"; "+extra)
	} else {
		h.Set("Cookie", extra)
	}
}

// Merge places the accumulated values ahead of any Set-Cookie already in h.
func (a *CookieAccumulator) Merge(h http.Header) {
	if len(a.queued) == 0 {
		return
	}
	merged := make([]string, 0, len(a.queued)+len(h["Set-Cookie"]))
	merged = append(merged, a.queued...)
	merged = append(merged, h["Set-Cookie"]...)
	h["Set-Cookie"] = merged
}
