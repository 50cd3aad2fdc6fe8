package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/provider"
	storagemem "github.com/bipulgarera-droid/seo-audit-slides/internal/storage/memory"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/tracker"
)

const testTaskID = "0198f3a2-0000-7000-8000-000000000001"

func TestWorker_ProcessTask_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t,
		fixedAdapter(audit.SourceTechnical, `{"onpage_score":91.2}`),
		fixedAdapter(audit.SourceKeywords, `{"rank_count":42}`),
		fixedAdapter(audit.SourceBacklinks, `{"domain_rank":310}`),
		fixedAdapter(audit.SourcePerformance, `{"score":88}`),
	)
	env.enqueue(t, audit.AllSources())

	go env.worker.Run(ctx)

	require.Eventually(t, func() bool {
		task, err := env.tracker.Get(context.Background(), testTaskID)
		return err == nil && task.Status == audit.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	task, err := env.tracker.Get(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Equal(t, "records/"+testTaskID, task.RecordRef)
	for _, src := range audit.AllSources() {
		require.Equal(t, audit.SourceSucceeded, task.Sources[src].Status)
		require.Equal(t, 1, task.Sources[src].Attempts)
	}

	record, err := env.records.GetRecord(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Len(t, record.Payloads, 4)
	require.Empty(t, record.Failed)
	require.JSONEq(t, `{"rank_count":42}`, string(record.Payloads[audit.SourceKeywords]))
	require.JSONEq(t, `{"score":88}`, string(record.Payloads[audit.SourcePerformance]))

	require.Eventually(t, func() bool {
		return len(env.publisher.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	msg := env.publisher.Messages()[0]
	require.Equal(t, testTaskID, msg["task_id"])
	require.Equal(t, string(audit.TaskStatusCompleted), msg["status"])
}

func TestWorker_ProcessTask_AuthFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backlinks := &scriptedAdapter{source: audit.SourceBacklinks, script: []fetchStep{
		{err: audit.NewSourceError(audit.SourceBacklinks, audit.ErrKindAuth, fmt.Errorf("bad credentials"))},
	}}
	env := newTestEnv(t,
		fixedAdapter(audit.SourceKeywords, `{"rank_count":42}`),
		backlinks,
	)
	env.enqueue(t, []audit.Source{audit.SourceKeywords, audit.SourceBacklinks})

	go env.worker.Run(ctx)

	require.Eventually(t, func() bool {
		task, err := env.tracker.Get(context.Background(), testTaskID)
		return err == nil && task.Status == audit.TaskStatusPartialFailure
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, backlinks.Calls())

	task, err := env.tracker.Get(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Equal(t, audit.SourceFailed, task.Sources[audit.SourceBacklinks].Status)
	require.Equal(t, audit.ErrKindAuth, task.Sources[audit.SourceBacklinks].ErrorKind)
	require.Equal(t, "records/"+testTaskID, task.RecordRef)

	record, err := env.records.GetRecord(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Len(t, record.Payloads, 1)
	require.Len(t, record.Failed, 1)
	require.Equal(t, audit.SourceBacklinks, record.Failed[0].Source)
	require.Equal(t, audit.ErrKindAuth, record.Failed[0].ErrorKind)
}

func TestWorker_ProcessTask_AllFailedOmitsRecordRef(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t,
		&scriptedAdapter{source: audit.SourceKeywords, script: []fetchStep{
			{err: audit.NewSourceError(audit.SourceKeywords, audit.ErrKindAuth, fmt.Errorf("denied"))},
		}},
		&scriptedAdapter{source: audit.SourceBacklinks, script: []fetchStep{
			{err: audit.NewSourceError(audit.SourceBacklinks, audit.ErrKindInvalidResponse, fmt.Errorf("garbage"))},
		}},
	)
	env.enqueue(t, []audit.Source{audit.SourceKeywords, audit.SourceBacklinks})

	go env.worker.Run(ctx)

	require.Eventually(t, func() bool {
		task, err := env.tracker.Get(context.Background(), testTaskID)
		return err == nil && task.Status == audit.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	task, err := env.tracker.Get(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Empty(t, task.RecordRef)

	// The record exists for inspection even when nothing succeeded.
	record, err := env.records.GetRecord(context.Background(), testTaskID)
	require.NoError(t, err)
	require.Empty(t, record.Payloads)
	require.Len(t, record.Failed, 2)
	require.Equal(t, audit.SourceKeywords, record.Failed[0].Source)
	require.Equal(t, audit.SourceBacklinks, record.Failed[1].Source)
}

func TestWorker_CancelAbortsInFlightSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocking := &blockingAdapter{source: audit.SourceTechnical, started: make(chan struct{}, 1)}
	env := newTestEnv(t, blocking)
	env.enqueue(t, []audit.Source{audit.SourceTechnical})

	go env.worker.Run(ctx)

	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never started")
	}
	require.True(t, env.cancels.Cancel(testTaskID))

	require.Eventually(t, func() bool {
		task, err := env.tracker.Get(context.Background(), testTaskID)
		return err == nil && task.Status == audit.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The registry entry is released once processing finishes.
	require.Eventually(t, func() bool {
		return !env.cancels.Cancel(testTaskID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_EmitsProgressEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t, fixedAdapter(audit.SourceKeywords, `{"rank_count":1}`))
	env.enqueue(t, []audit.Source{audit.SourceKeywords})

	go env.worker.Run(ctx)

	require.Eventually(t, func() bool {
		return env.emitter.Has(progress.StageTaskDone)
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, env.emitter.Has(progress.StageTaskStart))
	require.True(t, env.emitter.Has(progress.StageSourceStart))
	require.True(t, env.emitter.Has(progress.StageSourceDone))
}

// --- test environment ---

type testEnv struct {
	worker    *Worker
	tracker   *tracker.Tracker
	records   *storagemem.RecordStore
	queue     *fakeQueue
	publisher *fakePublisher
	emitter   *captureEmitter
	cancels   *CancelRegistry
}

func newTestEnv(t *testing.T, adapters ...audit.Adapter) *testEnv {
	t.Helper()
	registry, err := provider.NewRegistry(adapters...)
	require.NoError(t, err)

	clock := systemClock{}
	trk := tracker.New(storagemem.NewTaskStore(), clock, &fakeIDGen{id: testTaskID}, zap.NewNop())
	records := storagemem.NewRecordStore()
	queue := &fakeQueue{}
	publisher := &fakePublisher{}
	emitter := &captureEmitter{}
	cancels := NewCancelRegistry()

	w := New(queue, trk, records, registry, publisher, clock, emitter, cancels, Config{
		SourceTimeout: time.Second,
		RetryDelay:    time.Millisecond,
		Topic:         "audit-completions",
	}, zap.NewNop())

	return &testEnv{
		worker:    w,
		tracker:   trk,
		records:   records,
		queue:     queue,
		publisher: publisher,
		emitter:   emitter,
		cancels:   cancels,
	}
}

func (e *testEnv) enqueue(t *testing.T, sources []audit.Source) {
	t.Helper()
	task, err := e.tracker.Create(context.Background(), audit.AuditRequest{
		Domain:  "example.com",
		Sources: sources,
	})
	require.NoError(t, err)
	require.NoError(t, e.queue.Enqueue(context.Background(), audit.QueueItem{
		TaskID:  task.ID,
		Domain:  task.Domain,
		Sources: task.RequestedSources(),
	}))
}

// --- fakes ---

type fakeQueue struct {
	mu    sync.Mutex
	items []audit.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item audit.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (audit.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return audit.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		p.messages = append(p.messages, m)
	}
	return "msgid", nil
}

func (p *fakePublisher) Messages() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.messages...)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Has(stage progress.Stage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, evt := range c.events {
		if evt.Stage == stage {
			return true
		}
	}
	return false
}

type fakeIDGen struct {
	id string
}

func (g *fakeIDGen) NewID() (string, error) { return g.id, nil }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// fetchStep scripts one adapter invocation.
type fetchStep struct {
	payload string
	err     error
}

type scriptedAdapter struct {
	source audit.Source
	mu     sync.Mutex
	calls  int
	script []fetchStep
}

func (a *scriptedAdapter) Source() audit.Source { return a.source }

func (a *scriptedAdapter) Fetch(context.Context, string, audit.FetchParams) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.script[len(a.script)-1]
	if a.calls < len(a.script) {
		step = a.script[a.calls]
	}
	a.calls++
	if step.err != nil {
		return nil, step.err
	}
	return json.RawMessage(step.payload), nil
}

func (a *scriptedAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func fixedAdapter(source audit.Source, payload string) *scriptedAdapter {
	return &scriptedAdapter{source: source, script: []fetchStep{{payload: payload}}}
}

type blockingAdapter struct {
	source  audit.Source
	started chan struct{}
}

func (a *blockingAdapter) Source() audit.Source { return a.source }

func (a *blockingAdapter) Fetch(ctx context.Context, _ string, _ audit.FetchParams) (json.RawMessage, error) {
	select {
	case a.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, audit.NewSourceError(a.source, audit.ErrKindUnknown, ctx.Err())
}
