package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	taskID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{TaskID: taskID, TS: time.Now(), Stage: progress.StageTaskStart, Domain: "example.com"},
		{
			TaskID:  taskID,
			TS:      time.Now().Add(10 * time.Second),
			Stage:   progress.StageSourceDone,
			Source:  audit.SourceKeywords,
			Domain:  "example.com",
			Success: true,
			Dur:     200 * time.Millisecond,
		},
		{
			TaskID:    taskID,
			TS:        time.Now().Add(12 * time.Second),
			Stage:     progress.StageSourceDone,
			Source:    audit.SourcePerformance,
			Domain:    "example.com",
			ErrorKind: audit.ErrKindTimeout,
			Dur:       30 * time.Second,
		},
		{
			TaskID: taskID,
			TS:     time.Now().Add(15 * time.Second),
			Stage:  progress.StageTaskDone,
			Status: audit.TaskStatusPartialFailure,
			Dur:    15 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.auditsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.auditsCompleted.WithLabelValues(string(audit.TaskStatusPartialFailure))))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.auditsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.auditsRunning))

	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.sourceFetches.WithLabelValues(string(audit.SourceKeywords), "success")),
		1e-9,
	)
	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.sourceFetches.WithLabelValues(string(audit.SourcePerformance), string(audit.ErrKindTimeout))),
		1e-9,
	)
	require.Equal(t, 2, testutil.CollectAndCount(sink.sourceDuration, "audit_source_fetch_duration_seconds"))
}

// TestPrometheusSinkCountsRetries verifies the retry counter increments per source.
func TestPrometheusSinkCountsRetries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	taskID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{TaskID: taskID, TS: time.Now(), Stage: progress.StageSourceRetry, Source: audit.SourcePerformance},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceRetries.WithLabelValues(string(audit.SourcePerformance))))
}
