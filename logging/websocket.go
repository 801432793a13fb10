package logging

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const maxLoggedMessage = 100

// LogWebSocketMessage logs one relayed websocket frame. Text frames are
// logged with their (truncated) content, control frames at debug level and
// everything else by size.
func LogWebSocketMessage(logger *slog.Logger, messageType int, message []byte, err error, duration time.Duration) {
	logger = orDefault(logger)
	attrs := []any{
		slog.String("type", messageTypeName(messageType)),
		slog.Float64("duration_seconds", duration.Seconds()),
	}

	if err != nil {
		logger.Error("WebSocket message processing error", append(attrs, slog.String("error", err.Error()))...)
		return
	}

	switch messageType {
	case websocket.TextMessage:
		logger.Info("WebSocket text message relayed", append(attrs, slog.String("message_content", truncateMessage(message)))...)
	case websocket.PingMessage, websocket.PongMessage:
		logger.Debug("WebSocket control message relayed", attrs...)
	default:
		logger.Info("WebSocket message relayed", append(attrs, slog.Int("message_size_bytes", len(message)))...)
	}
}

func truncateMessage(message []byte) string {
	if len(message) > maxLoggedMessage {
		return string(message[:maxLoggedMessage]) + "..."
	}
	return string(message)
}

func messageTypeName(messageType int) string {
	switch messageType {
	case websocket.TextMessage:
		return "Text"
	case websocket.BinaryMessage:
		return "Binary"
	case websocket.CloseMessage:
		return "Close"
	case websocket.PingMessage:
		return "Ping"
	case websocket.PongMessage:
		return "Pong"
	default:
		return "Unknown"
	}
}
