package events

import "log/slog"

// LogEmitter forwards every event to a structured logger. The daemon uses it
// as the default notification sink.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter wires an emitter to the supplied logger. A nil logger falls
// back to the process default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

type attributed interface {
	EventAttributes() map[string]string
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if withAttrs, ok := evt.(attributed); ok {
		for k, v := range withAttrs.EventAttributes() {
			args = append(args, slog.String(k, v))
		}
	}
	l.logger.Info("escrow event", args...)
}
