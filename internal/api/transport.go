package api

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs each round trip with method, path, status and
// duration.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", r.Header.Get("X-Request-ID")),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		t.logger.LogAttrs(r.Context(), slog.LevelDebug, "round trip failed", attrs...)
		return nil, err
	}
	attrs = append(attrs, slog.Int("status", resp.StatusCode))
	t.logger.LogAttrs(r.Context(), slog.LevelDebug, "round trip", attrs...)
	return resp, nil
}

// withLogging returns a copy of hc whose transport logs every round trip.
func withLogging(hc *http.Client, logger *slog.Logger) *http.Client {
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &loggingTransport{next: next, logger: logger}
	return &wrapped
}
