package notify

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/catalogimport/internal/core"
	"github.com/JonMunkholm/catalogimport/internal/logging"
)

// Log writes events to the structured log. Failed and commit-failed
// imports log at warn level.
type Log struct {
	logger *slog.Logger // nil uses the request logger
}

var _ core.Notifier = Log{}

// NewLog returns a log notifier. A nil logger uses logging.FromContext.
func NewLog(logger *slog.Logger) Log {
	return Log{logger: logger}
}

func (l Log) Notify(ctx context.Context, e core.Event) error {
	logger := l.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	level := slog.LevelInfo
	if e.Severity == core.EventCritical {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "import event",
		"action", e.Action,
		"severity", e.Severity,
		"session_id", e.SessionID,
		"scope", e.Scope,
		"entity_type", e.EntityType,
		"actor", e.Actor,
		"status", e.Status,
		"errors", e.Errors,
		"warnings", e.Warnings,
	)
	return nil
}
