package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/lead-scraper/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	batchID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{BatchID: batchID, TS: time.Now(), Stage: progress.StageBatchStart, Index: 2},
		{BatchID: batchID, TS: time.Now(), Stage: progress.StageJobError, URL: "https://a.test", Note: "boom"},
		{BatchID: batchID, TS: time.Now(), Stage: progress.StageBatchDone, Index: 2, Dropped: 3},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.EqualValues(t, 3, entries[2].ContextMap()["dropped"])
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.EqualValues(t, 2, entries[0].ContextMap()["jobs"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
