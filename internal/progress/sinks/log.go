package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-scraper/internal/progress"
)

// LogSink emits structured logs for debugging progress streams.
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

// Consume logs each event in the batch. Failures are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("batch_id", evt.BatchUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageBatchStart, progress.StageBatchDone:
			fields = append(fields, zap.Int("jobs", evt.Index))
		default:
			fields = append(fields,
				zap.Int("index", evt.Index),
				zap.String("url", evt.URL),
				zap.String("site", evt.Site),
			)
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Dropped > 0 {
			fields = append(fields, zap.Int("dropped", evt.Dropped))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageJobError || evt.Stage == progress.StageContactError {
			s.logger.Warn("lead progress", fields...)
			continue
		}
		s.logger.Info("lead progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
