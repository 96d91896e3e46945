package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide structured logger: JSON lines on stderr
// keyed timestamp/severity/message, tagged with the service name and, when
// provided, the environment. Local environments log at debug level.
func Setup(service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	logger := slog.New(newHandler(os.Stderr, levelFor(env))).With(
		slog.String("service", strings.TrimSpace(service)),
	)
	if env != "" {
		logger = logger.With(slog.String("env", env))
	}
	slog.SetDefault(logger)
	return logger
}

func levelFor(env string) slog.Level {
	if env == "" || strings.EqualFold(env, "local") {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})
}
