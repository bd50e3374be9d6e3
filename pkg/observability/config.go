package observability

import "log/slog"

// Config holds logger construction options.
type Config struct {
	ServiceName  string
	LogLevel     slog.Level
	LogFormat    string
	LogAddSource bool
}
