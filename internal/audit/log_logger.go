package audit

import (
	"context"
	"log"
)

// LogLogger writes audit entries to a process logger when no database is configured.
type LogLogger struct {
	logger *log.Logger
}

// NewLogLogger constructs a LogLogger.
func NewLogLogger(logger *log.Logger) *LogLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &LogLogger{logger: logger}
}

// Log prints the entry.
func (l *LogLogger) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	l.logger.Printf("audit: action=%s actor=%s auth=%s role=%s resource=%s/%s site=%q metadata=%s",
		entry.Action, entry.Actor, entry.AuthMethod, entry.Role, entry.ResourceType, entry.ResourceID, entry.SiteName, string(entry.Metadata))
	return nil
}
