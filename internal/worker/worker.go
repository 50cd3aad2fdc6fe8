// Package worker implements the audit execution loop: it consumes queued
// tasks, fans out to the provider adapters, and finalizes the audit record.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/aggregate"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/provider"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/tracker"
)

// Config controls Worker behavior.
type Config struct {
	// SourceTimeout bounds a single adapter invocation.
	SourceTimeout time.Duration
	// RetryDelay is the pause before the single retry of a transient failure.
	RetryDelay time.Duration
	// Topic, when set together with a publisher, receives completion events.
	Topic string
}

// Worker consumes queue items and executes the audit fan-out pipeline.
type Worker struct {
	queue     audit.Queue
	tracker   *tracker.Tracker
	records   audit.RecordStore
	adapters  *provider.Registry
	publisher audit.Publisher
	clock     audit.Clock
	emitter   progress.Emitter
	cancels   *CancelRegistry
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue audit.Queue,
	trk *tracker.Tracker,
	records audit.RecordStore,
	adapters *provider.Registry,
	publisher audit.Publisher,
	clock audit.Clock,
	emitter progress.Emitter,
	cancels *CancelRegistry,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 5 * time.Minute
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cancels == nil {
		cancels = NewCancelRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		tracker:   trk,
		records:   records,
		adapters:  adapters,
		publisher: publisher,
		clock:     clock,
		emitter:   emitter,
		cancels:   cancels,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item audit.QueueItem) {
	started := w.clock.Now()
	eventID := progress.ParseTaskID(item.TaskID)
	w.emit(progress.Event{
		TaskID: eventID,
		TS:     started,
		Stage:  progress.StageTaskStart,
		Domain: item.Domain,
	})

	// Fetches run under a per-task cancelable context so the API can abort
	// them; status writes use the outer context so cancellation is still
	// recorded.
	taskCtx, release := w.cancels.Register(item.TaskID, ctx)
	defer release()

	results := w.fanOut(ctx, taskCtx, item)

	task, err := w.finalize(ctx, item, results)
	if err != nil {
		w.logger.Error("finalize task failed",
			zap.String("task_id", item.TaskID),
			zap.Error(err),
		)
		w.emit(progress.Event{
			TaskID: eventID,
			TS:     w.clock.Now(),
			Stage:  progress.StageTaskError,
			Domain: item.Domain,
			Note:   err.Error(),
		})
		return
	}

	w.publishCompletion(ctx, task)
	w.emit(progress.Event{
		TaskID: eventID,
		TS:     w.clock.Now(),
		Stage:  progress.StageTaskDone,
		Domain: item.Domain,
		Status: task.Status,
		Dur:    w.clock.Now().Sub(started),
	})
}

// fanOut launches one goroutine per requested source and collects every
// fetch result. It always returns one result per source.
func (w *Worker) fanOut(ctx, taskCtx context.Context, item audit.QueueItem) []audit.FetchResult {
	results := make([]audit.FetchResult, len(item.Sources))
	var wg sync.WaitGroup
	for i, source := range item.Sources {
		wg.Add(1)
		go func(i int, source audit.Source) {
			defer wg.Done()
			results[i] = w.runSource(ctx, taskCtx, item, source)
		}(i, source)
	}
	wg.Wait()
	return results
}

func (w *Worker) runSource(ctx, taskCtx context.Context, item audit.QueueItem, source audit.Source) audit.FetchResult {
	eventID := progress.ParseTaskID(item.TaskID)
	if _, err := w.tracker.MarkSource(ctx, item.TaskID, source, audit.SourceOutcome{
		Status: audit.SourceRunning,
	}); err != nil {
		w.logger.Error("mark source running failed",
			zap.String("task_id", item.TaskID),
			zap.String("source", string(source)),
			zap.Error(err),
		)
	}
	w.emit(progress.Event{
		TaskID: eventID,
		TS:     w.clock.Now(),
		Stage:  progress.StageSourceStart,
		Source: source,
		Domain: item.Domain,
	})

	started := w.clock.Now()
	result := w.fetchWithRetry(taskCtx, item, source)
	result.FetchedAt = w.clock.Now()

	outcome := audit.SourceOutcome{Status: audit.SourceSucceeded, Attempts: result.Attempts}
	if !result.Success {
		outcome = audit.SourceOutcome{
			Status:    audit.SourceFailed,
			ErrorKind: result.ErrorKind,
			ErrorText: result.ErrorText,
			Attempts:  result.Attempts,
		}
	}
	if _, err := w.tracker.MarkSource(ctx, item.TaskID, source, outcome); err != nil {
		w.logger.Error("mark source outcome failed",
			zap.String("task_id", item.TaskID),
			zap.String("source", string(source)),
			zap.Error(err),
		)
	}
	w.emit(progress.Event{
		TaskID:    eventID,
		TS:        result.FetchedAt,
		Stage:     progress.StageSourceDone,
		Source:    source,
		Domain:    item.Domain,
		Success:   result.Success,
		ErrorKind: result.ErrorKind,
		Dur:       result.FetchedAt.Sub(started),
	})
	return result
}

// fetchWithRetry invokes the adapter once, and once more after a transient
// failure. Non-transient failures are never retried.
func (w *Worker) fetchWithRetry(ctx context.Context, item audit.QueueItem, source audit.Source) audit.FetchResult {
	adapter, err := w.adapters.Adapter(source)
	if err != nil {
		return audit.FetchResult{
			Source:    source,
			ErrorKind: audit.ErrKindUnknown,
			ErrorText: err.Error(),
			Attempts:  0,
		}
	}

	params := audit.FetchParams{MaxPages: item.MaxPages}
	result := w.fetchOnce(ctx, adapter, item.Domain, params)
	result.Attempts = 1
	if result.Success || !result.ErrorKind.Transient() || ctx.Err() != nil {
		return result
	}

	w.emit(progress.Event{
		TaskID: progress.ParseTaskID(item.TaskID),
		TS:     w.clock.Now(),
		Stage:  progress.StageSourceRetry,
		Source: source,
		Domain: item.Domain,
		Note:   result.ErrorText,
	})
	if w.cfg.RetryDelay > 0 {
		select {
		case <-ctx.Done():
			return result
		case <-time.After(w.cfg.RetryDelay):
		}
	}

	retried := w.fetchOnce(ctx, adapter, item.Domain, params)
	retried.Attempts = 2
	return retried
}

func (w *Worker) fetchOnce(ctx context.Context, adapter audit.Adapter, domain string, params audit.FetchParams) audit.FetchResult {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.SourceTimeout)
	defer cancel()

	source := adapter.Source()
	payload, err := adapter.Fetch(fetchCtx, domain, params)
	if err != nil {
		var srcErr *audit.SourceError
		kind := audit.Classify(err)
		if errors.As(err, &srcErr) {
			kind = srcErr.Kind
		}
		return audit.FetchResult{
			Source:    source,
			ErrorKind: kind,
			ErrorText: err.Error(),
		}
	}
	return audit.FetchResult{
		Source:  source,
		Payload: payload,
		Success: true,
	}
}

// finalize builds the audit record, persists it, and attaches the record
// reference when the task ended with at least one successful source.
func (w *Worker) finalize(ctx context.Context, item audit.QueueItem, results []audit.FetchResult) (audit.Task, error) {
	record := aggregate.Build(item.TaskID, item.Domain, results, w.clock.Now())
	if err := w.records.PutRecord(ctx, record); err != nil {
		return audit.Task{}, fmt.Errorf("put record: %w", err)
	}

	task, err := w.tracker.Get(ctx, item.TaskID)
	if err != nil {
		return audit.Task{}, fmt.Errorf("get task: %w", err)
	}
	if len(record.Payloads) == 0 {
		// Nothing succeeded; the record exists for inspection but the task
		// carries no result reference.
		return task, nil
	}
	ref := recordRef(item.TaskID)
	if _, err := w.tracker.Finalize(ctx, item.TaskID, ref); err != nil {
		return audit.Task{}, fmt.Errorf("attach record ref: %w", err)
	}
	task.RecordRef = ref
	return task, nil
}

func recordRef(taskID string) string {
	return "records/" + taskID
}

func (w *Worker) publishCompletion(ctx context.Context, task audit.Task) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"task_id":    task.ID,
		"domain":     task.Domain,
		"status":     string(task.Status),
		"record_ref": task.RecordRef,
		"timestamp":  w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("publish completion failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("audit completed",
		zap.String("task_id", task.ID),
		zap.String("domain", task.Domain),
		zap.String("status", string(task.Status)),
	)
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}
