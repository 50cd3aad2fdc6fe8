package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development where a metrics backend is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("task_id", evt.TaskUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("source", string(evt.Source)),
			zap.String("domain", evt.Domain),
			zap.Bool("success", evt.Success),
			zap.String("error_kind", string(evt.ErrorKind)),
			zap.String("status", string(evt.Status)),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
