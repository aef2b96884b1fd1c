package logger

import (
	"log/slog"
	"time"
)

// HTTPLogger records request access logs on a dedicated scope so they can be
// filtered or shipped separately from application logs.
type HTTPLogger struct {
	log *slog.Logger
}

// NewHTTPLogger creates an HTTP access logger
func NewHTTPLogger(log *slog.Logger) *HTTPLogger {
	return &HTTPLogger{log: log.With(Scope("http"))}
}

// LogRequest records a single completed HTTP request
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	h.log.Info("access",
		slog.String("ip", ip),
		slog.String("method", method),
		slog.String("uri", uri),
		slog.Int("status", status),
		slog.Duration("latency", latency),
		slog.String("user_agent", userAgent),
		slog.String("request_id", requestID),
	)
}
