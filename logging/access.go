package logging

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"gateway/writer"

	"github.com/fatih/color"
)

var (
	bannerStyle = color.New(color.FgHiWhite, color.BgRed).SprintFunc()
	labelStyle  = color.New(color.FgHiWhite, color.BgHiCyan).SprintFunc()
	headerStyle = color.New(color.FgHiWhite, color.BgHiMagenta).SprintFunc()
	valueStyle  = color.New(color.FgWhite, color.Bold).SprintFunc()
	warnStyle   = color.New(color.FgHiWhite, color.BgMagenta).SprintFunc()
)

// dump renders a multi-line block for the verbose access log.
type dump struct {
	sb strings.Builder
}

func (d *dump) banner(title string) {
	d.sb.WriteString("\n")
	d.sb.WriteString(bannerStyle(fmt.Sprintf("----------- %s -----------", title)))
	d.sb.WriteString("\n\n")
}

func (d *dump) field(label string, value any) {
	fmt.Fprintf(&d.sb, "%s %s\n", labelStyle(label+":"), valueStyle(fmt.Sprint(value)))
}

// headers writes h sorted by name so dumps of the same exchange are stable.
func (d *dump) headers(title string, h http.Header) {
	d.sb.WriteString(headerStyle(title + ":"))
	d.sb.WriteString("\n")
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range h[name] {
			fmt.Fprintf(&d.sb, "\t%s: %s\n", valueStyle(name), v)
		}
	}
}

func (d *dump) warn(format string, args ...any) {
	fmt.Fprintf(&d.sb, "%s %s\n", warnStyle("WARNING:"), fmt.Sprintf(format, args...))
}

func (d *dump) String() string { return d.sb.String() }

// LogRequestCompact writes one structured access log line for a request.
func LogRequestCompact(logger *slog.Logger, r *http.Request, target string, statusCode int, duration time.Duration) {
	orDefault(logger).Info("HTTP request processed",
		slog.String("client_ip", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("url", r.URL.Path),
		slog.String("protocol", r.Proto),
		slog.String("target", target),
		slog.Int("status_code", statusCode),
		slog.String("referer", r.Header.Get("Referer")),
		slog.String("user_agent", r.Header.Get("User-Agent")),
		slog.Float64("duration_seconds", duration.Seconds()),
	)
}

// LogRequestVerbose dumps a request and its outcome at debug level. The
// request body is only described by its declared length: it is streamed to
// the target and never buffered here.
func LogRequestVerbose(logger *slog.Logger, r *http.Request, target string, statusCode int, duration time.Duration) {
	var d dump
	d.banner("Request")
	d.field("Method", r.Method)
	d.field("URL", r.URL.String())
	d.field("Target", target)
	d.headers("Request Headers", r.Header)
	if r.ContentLength >= 0 {
		d.field("Request Body", fmt.Sprintf("%d bytes", r.ContentLength))
	} else {
		d.field("Request Body", "chunked")
	}
	d.field("Status Code", statusCode)
	d.field("Duration", fmt.Sprintf("%.6f seconds", duration.Seconds()))

	orDefault(logger).Debug("Verbose request details", slog.String("formatted_output", d.String()))
}

// LogResponse dumps what the gateway wrote to the client at debug level,
// including the captured prefix of the body.
func LogResponse(logger *slog.Logger, lrw *writer.ResponseWriter) {
	m := lrw.GetMetrics()

	var d dump
	d.banner("Response")
	d.field("Status Code", m.StatusCode)
	if m.ContentType != "" {
		d.field("Content-Type", m.ContentType)
	}
	d.field("Bytes Written", m.BytesWritten)
	d.headers("Response Headers", lrw.Header())

	switch body := lrw.GetBufferedBodyString(); {
	case m.IsAborted:
		d.field("Body", "[client connection dropped]")
	case m.IsHijacked:
		d.field("Body", "[connection upgraded]")
	case m.IsBufferTruncated:
		d.field("Body (truncated)", body)
		d.warn("response body was truncated, captured %d of %d bytes", m.BufferedBytes, m.BytesWritten)
	case body == "":
		d.field("Body", "[empty]")
	default:
		d.field("Body", body)
	}

	orDefault(logger).Debug("Verbose response details", slog.String("formatted_output", d.String()))
}
