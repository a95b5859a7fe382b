// Package admin exposes the administrative operations of spec.md §6.4
// as a chi-routed HTTP API, matching the router/handler split this
// codebase already uses for its document API.
package admin

import "time"

// Config holds the admin HTTP server's settings.
type Config struct {
	Addr           string        // listen address, e.g. ":7070"
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	EnableCORS     bool
	AllowedOrigins []string
	EnableLogging  bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":7070",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 << 20,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  true,
	}
}
