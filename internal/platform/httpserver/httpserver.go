package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"accman/internal/platform/config"
)

// New builds an HTTP server with the configured timeouts. Zero timeouts
// fall back to conservative defaults.
func New(addr string, handler http.Handler, cfg config.Server, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       orDefault(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      orDefault(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       orDefault(cfg.IdleTimeout, 60*time.Second),
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
