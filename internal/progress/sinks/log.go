package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// LogSink writes each event as a debug log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.URL != "" {
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("depth", evt.Depth),
			)
		}
		if evt.Stage == progress.StageFetchDone {
			fields = append(fields,
				zap.Int("status", evt.StatusCode),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.FailureKind != "" {
			fields = append(fields, zap.String("failure_kind", evt.FailureKind))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
