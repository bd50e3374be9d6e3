package observability

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// ConfigureLogger creates and configures a logger based on the provided configuration
func ConfigureLogger(cfg *Config, logOut io.Writer) *slog.Logger {
	return slog.New(createStandardHandler(cfg, logOut)).With("service", cfg.ServiceName)
}

// createStandardHandler creates a standard slog handler
func createStandardHandler(cfg *Config, logOut io.Writer) slog.Handler {
	//nolint: exhaustruct // optional config
	logOpts := &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogAddSource,
	}

	switch cfg.LogFormat {
	case "json":
		return slog.NewJSONHandler(logOut, logOpts)
	default:
		//nolint:exhaustruct // optional config
		return tint.NewHandler(logOut, &tint.Options{
			AddSource:  cfg.LogAddSource,
			TimeFormat: "15:04:05",
		})
	}
}
