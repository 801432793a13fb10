package writer

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// DefaultMaxCaptureSize is the default number of response body bytes kept for verbose logging (64KB).
const DefaultMaxCaptureSize = 64 * 1024

// StatusClientClosedRequest is recorded for a response dropped because the
// client went away before anything was written.
const StatusClientClosedRequest = 499

// ResponseWriter wraps an http.ResponseWriter and records what was sent:
// status code, byte count and, optionally, the head of the body.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int   // HTTP status code, 0 until headers are written
	BytesWritten int64 // Total bytes written
	Target       string // Name of the target that served the request, set by the dispatcher

	captureLimit int
	captured     bytes.Buffer
	truncated    bool
	contentType  string
	hijacked     bool
	aborted      bool

	headerMu sync.Mutex // Protects header-related state
}

// WriterOption allows customization of ResponseWriter behavior
type WriterOption func(*ResponseWriter)

// WithBodyCapture keeps up to limit bytes of the response body.
//
// Parameters:
// - limit: Maximum captured size in bytes; 0 disables capture
//
// Returns:
// - WriterOption: The option function
func WithBodyCapture(limit int) WriterOption {
	return func(rw *ResponseWriter) {
		rw.captureLimit = limit
	}
}

// NewResponseWriter creates a new ResponseWriter.
//
// Parameters:
// - w: The underlying http.ResponseWriter
// - opts: Optional configuration options
//
// Returns:
// - *ResponseWriter: The configured response writer
func NewResponseWriter(w http.ResponseWriter, opts ...WriterOption) *ResponseWriter {
	rw := &ResponseWriter{ResponseWriter: w}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// WriteHeader captures the status code and forwards it once.
func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.headerMu.Lock()
	if rw.StatusCode != 0 {
		rw.headerMu.Unlock()
		return
	}
	// 1xx responses other than 101 are interim and may repeat.
	if statusCode >= 100 && statusCode < 200 && statusCode != http.StatusSwitchingProtocols {
		rw.headerMu.Unlock()
		rw.ResponseWriter.WriteHeader(statusCode)
		return
	}
	rw.StatusCode = statusCode
	rw.contentType = rw.Header().Get("Content-Type")
	rw.headerMu.Unlock()

	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write writes the data to the connection as part of an HTTP reply.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.HeadersWritten() {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	atomic.AddInt64(&rw.BytesWritten, int64(n))

	if rw.captureLimit > 0 && !rw.truncated {
		room := rw.captureLimit - rw.captured.Len()
		if n > room {
			rw.captured.Write(b[:room])
			rw.truncated = true
		} else {
			rw.captured.Write(b[:n])
		}
	}

	return n, err
}

// HeadersWritten returns true if headers have been written or the
// connection was hijacked.
func (rw *ResponseWriter) HeadersWritten() bool {
	rw.headerMu.Lock()
	defer rw.headerMu.Unlock()
	return rw.StatusCode != 0 || rw.hijacked
}

// Status returns the recorded status code, 200 when the handler wrote
// nothing.
func (rw *ResponseWriter) Status() int {
	rw.headerMu.Lock()
	defer rw.headerMu.Unlock()
	if rw.StatusCode == 0 {
		return http.StatusOK
	}
	return rw.StatusCode
}

// Hijack implements the http.Hijacker interface.
// Allows taking over the connection for protocols like WebSocket.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, brw, err := hijacker.Hijack()
	if err == nil {
		rw.headerMu.Lock()
		rw.hijacked = true
		if rw.StatusCode == 0 {
			rw.StatusCode = http.StatusSwitchingProtocols
		}
		rw.headerMu.Unlock()
	}
	return conn, brw, err
}

// Abort drops the client connection without sending anything more. Unlike
// Hijack it does not record a protocol switch.
func (rw *ResponseWriter) Abort() error {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return http.ErrNotSupported
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return err
	}

	rw.headerMu.Lock()
	rw.aborted = true
	if rw.StatusCode == 0 {
		rw.StatusCode = StatusClientClosedRequest
	}
	rw.headerMu.Unlock()

	return conn.Close()
}

// Flush implements the http.Flusher interface.
func (rw *ResponseWriter) Flush() {
	if !rw.HeadersWritten() {
		rw.WriteHeader(http.StatusOK)
	}
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap returns the wrapped writer for http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ResponseMetrics provides detailed metrics about the response
type ResponseMetrics struct {
	StatusCode        int    // HTTP status code
	BytesWritten      int64  // Total bytes written
	BufferedBytes     int    // Bytes captured for logging
	IsBufferTruncated bool   // Whether the capture was cut short
	IsHijacked        bool   // Whether the connection was taken over
	IsAborted         bool   // Whether the client connection was dropped
	ContentType       string // Content-Type header value
}

// GetMetrics returns response metrics for monitoring.
func (rw *ResponseWriter) GetMetrics() ResponseMetrics {
	rw.headerMu.Lock()
	defer rw.headerMu.Unlock()

	status := rw.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return ResponseMetrics{
		StatusCode:        status,
		BytesWritten:      atomic.LoadInt64(&rw.BytesWritten),
		BufferedBytes:     rw.captured.Len(),
		IsBufferTruncated: rw.truncated,
		IsHijacked:        rw.hijacked,
		IsAborted:         rw.aborted,
		ContentType:       rw.contentType,
	}
}

// GetBufferedBodyString returns the captured head of the body.
func (rw *ResponseWriter) GetBufferedBodyString() string {
	return rw.captured.String()
}
