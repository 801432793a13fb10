package websocket

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"gateway/logging"

	"github.com/gorilla/websocket"
)

// DialError reports that the upstream could not be reached. The client
// connection has not been upgraded when it is returned, so the caller may
// still answer with a regular HTTP response.
type DialError struct {
	URL string
	Err error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("websocket dial %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// handshakeHeaders are generated by the dialer and must not be copied from
// the client request.
var handshakeHeaders = []string{
	"Upgrade",
	"Connection",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol",
}

// Relay forwards WebSocket connections between clients and one upstream.
// A Relay is safe for concurrent use.
type Relay struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewRelay creates a relay dialing upstreams with the given TLS settings.
//
// Parameters:
//   - tlsConfig: TLS configuration for wss upstreams, nil for the defaults.
//   - handshakeTimeout: Maximum duration of the upstream handshake, 0 for none.
//   - logger: The logger instance.
//
// Returns:
//   - *Relay: The relay.
func NewRelay(tlsConfig *tls.Config, handshakeTimeout time.Duration, logger *slog.Logger) *Relay {
	return &Relay{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			TLSClientConfig:  tlsConfig,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// ToWebSocketURL converts an http(s) target URL to its ws(s) form.
//
// Parameters:
//   - target: The target URL.
//
// Returns:
//   - string: The URL with a ws or wss scheme.
//   - error: An error if the URL cannot be parsed or has an unsupported scheme.
func ToWebSocketURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket target scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// HandleWebSocketProxy proxies the WebSocket connection of r to targetURL.
// The upstream is dialed before the client is upgraded: a dial failure is
// returned as a *DialError and nothing has been written to w. When the
// upstream answers the handshake with a regular response, that response is
// relayed to the client. Once both sides are connected, messages are copied
// in both directions until either side closes.
//
// Parameters:
//   - w: The HTTP response writer.
//   - r: The HTTP request.
//   - targetURL: The URL of the target WebSocket server.
//
// Returns:
//   - error: A *DialError when the upstream could not be reached, nil otherwise.
func (rl *Relay) HandleWebSocketProxy(w http.ResponseWriter, r *http.Request, targetURL string) error {
	wsURL, err := ToWebSocketURL(targetURL)
	if err != nil {
		return &DialError{URL: targetURL, Err: err}
	}

	dialer := *rl.dialer
	dialer.Subprotocols = websocket.Subprotocols(r)

	requestHeader := r.Header.Clone()
	for _, h := range handshakeHeaders {
		requestHeader.Del(h)
	}

	serverConn, resp, err := dialer.DialContext(r.Context(), wsURL, requestHeader)
	if err != nil {
		if resp != nil {
			relayRejection(w, resp)
			return nil
		}
		return &DialError{URL: wsURL, Err: err}
	}
	defer func() {
		if err := serverConn.Close(); err != nil {
			rl.logger.Debug("Error closing server WebSocket connection", slog.Any("details", err))
		}
	}()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	if sp := serverConn.Subprotocol(); sp != "" {
		upgrader.Subprotocols = []string{sp}
	}

	var responseHeader http.Header
	if cookies := resp.Header.Values("Set-Cookie"); len(cookies) > 0 {
		responseHeader = http.Header{"Set-Cookie": cookies}
	}

	clientConn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade has already answered the client.
		rl.logger.Warn("Failed to upgrade to WebSocket", slog.Any("details", err))
		return nil
	}
	defer func() {
		if err := clientConn.Close(); err != nil {
			rl.logger.Debug("Error closing client WebSocket connection", slog.Any("details", err))
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- CopyWebSocketMessages(clientConn, serverConn, rl.logger)
	}()
	go func() {
		done <- CopyWebSocketMessages(serverConn, clientConn, rl.logger)
	}()

	// The first direction to stop ends the relay; the deferred closes unblock the other.
	<-done
	return nil
}

func relayRejection(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// CopyWebSocketMessages copies messages from the source WebSocket connection to the destination WebSocket connection.
// It logs the details of the messages and any errors that occur during the process. A close frame
// received from the source is forwarded to the destination.
//
// Parameters:
//   - src: The source WebSocket connection.
//   - dest: The destination WebSocket connection.
//   - logger: The logger instance.
//
// Returns:
//   - error: An error if the message copying fails.
func CopyWebSocketMessages(src, dest *websocket.Conn, logger *slog.Logger) error {
	for {
		startTime := time.Now()
		messageType, message, err := src.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				msg := websocket.FormatCloseMessage(closeErr.Code, closeErr.Text)
				if closeErr.Code == websocket.CloseNoStatusReceived {
					msg = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				}
				dest.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				logger.Error("Unexpected WebSocket closure", slog.Any("details", err))
			}
			logging.LogWebSocketMessage(logger, messageType, message, err, time.Since(startTime))
			return err
		}
		logging.LogWebSocketMessage(logger, messageType, message, nil, time.Since(startTime))

		if err := dest.WriteMessage(messageType, message); err != nil {
			logger.Error("Error writing message", slog.Any("details", err))
			logging.LogWebSocketMessage(logger, messageType, message, err, time.Since(startTime))
			return err
		}
	}
}

// IsWebSocketRequest checks if the given HTTP request is a WebSocket upgrade request.
//
// Parameters:
//   - r: The HTTP request.
//
// Returns:
//   - bool: True if the request is a WebSocket upgrade request, false otherwise.
func IsWebSocketRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
