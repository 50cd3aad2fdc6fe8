package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type fakeIDGen struct {
	mu   sync.Mutex
	next int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return string(rune('a' + g.next - 1)), nil
}

func newTracker() *Tracker {
	return New(
		memory.NewTaskStore(),
		&fakeClock{now: time.Unix(1000, 0).UTC()},
		&fakeIDGen{},
		nil,
	)
}

func TestCreateInitializesPendingSources(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, err := tr.Create(ctx, audit.AuditRequest{
		Domain:  "https://www.Example.com",
		Sources: []audit.Source{audit.SourceKeywords, audit.SourcePerformance},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Domain != "example.com" {
		t.Fatalf("expected canonical domain, got %q", task.Domain)
	}
	if task.Status != audit.TaskStatusPending || len(task.Sources) != 2 {
		t.Fatalf("unexpected initial task: %+v", task)
	}
	for src, state := range task.Sources {
		if state.Status != audit.SourcePending {
			t.Fatalf("source %s not pending: %+v", src, state)
		}
	}
}

func TestCreateRejectsInvalidDomain(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	if _, err := tr.Create(context.Background(), audit.AuditRequest{Domain: "  "}); !errors.Is(err, audit.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestMarkSourceDrivesAggregateStatus(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, err := tr.Create(ctx, audit.AuditRequest{
		Domain:  "example.com",
		Sources: []audit.Source{audit.SourceKeywords, audit.SourceBacklinks},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := tr.MarkSource(ctx, task.ID, audit.SourceKeywords, audit.SourceOutcome{
		Status: audit.SourceRunning, Attempts: 1,
	})
	if err != nil {
		t.Fatalf("MarkSource(running) error = %v", err)
	}
	if got.Status != audit.TaskStatusRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}

	got, err = tr.MarkSource(ctx, task.ID, audit.SourceKeywords, audit.SourceOutcome{
		Status: audit.SourceSucceeded, Attempts: 1,
	})
	if err != nil {
		t.Fatalf("MarkSource(succeeded) error = %v", err)
	}
	if got.Status != audit.TaskStatusRunning {
		t.Fatalf("one source outstanding, expected running, got %s", got.Status)
	}

	got, err = tr.MarkSource(ctx, task.ID, audit.SourceBacklinks, audit.SourceOutcome{
		Status:    audit.SourceFailed,
		ErrorKind: audit.ErrKindAuth,
		ErrorText: "credentials rejected",
		Attempts:  1,
	})
	if err != nil {
		t.Fatalf("MarkSource(failed) error = %v", err)
	}
	if got.Status != audit.TaskStatusPartialFailure {
		t.Fatalf("expected partial_failure, got %s", got.Status)
	}
	state := got.Sources[audit.SourceBacklinks]
	if state.ErrorKind != audit.ErrKindAuth || state.ErrorText != "credentials rejected" {
		t.Fatalf("error detail not preserved: %+v", state)
	}
}

func TestMarkSourceIdempotent(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, _ := tr.Create(ctx, audit.AuditRequest{
		Domain:  "example.com",
		Sources: []audit.Source{audit.SourceKeywords},
	})
	outcome := audit.SourceOutcome{Status: audit.SourceSucceeded, Attempts: 1}

	first, err := tr.MarkSource(ctx, task.ID, audit.SourceKeywords, outcome)
	if err != nil {
		t.Fatalf("first MarkSource() error = %v", err)
	}
	second, err := tr.MarkSource(ctx, task.ID, audit.SourceKeywords, outcome)
	if err != nil {
		t.Fatalf("second MarkSource() error = %v", err)
	}
	if second.Status != first.Status {
		t.Fatalf("status changed on repeat: %s vs %s", second.Status, first.Status)
	}
	fs, ss := first.Sources[audit.SourceKeywords], second.Sources[audit.SourceKeywords]
	if ss.Status != fs.Status || ss.Attempts != fs.Attempts || ss.ErrorKind != fs.ErrorKind {
		t.Fatalf("repeat mark changed state beyond timestamp: %+v vs %+v", ss, fs)
	}
	if !ss.UpdatedAt.After(fs.UpdatedAt) {
		t.Fatal("repeat mark should advance the timestamp")
	}
}

func TestMarkSourceUnknownSource(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, _ := tr.Create(ctx, audit.AuditRequest{
		Domain:  "example.com",
		Sources: []audit.Source{audit.SourceKeywords},
	})
	_, err := tr.MarkSource(ctx, task.ID, audit.SourceBacklinks, audit.SourceOutcome{
		Status: audit.SourceRunning,
	})
	if !errors.Is(err, audit.ErrValidation) {
		t.Fatalf("expected ErrValidation for unrequested source, got %v", err)
	}
}

func TestMarkSourceConcurrentSourcesNeverLost(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, _ := tr.Create(ctx, audit.AuditRequest{Domain: "example.com"})

	var wg sync.WaitGroup
	for _, src := range audit.AllSources() {
		wg.Add(1)
		go func(src audit.Source) {
			defer wg.Done()
			if _, err := tr.MarkSource(ctx, task.ID, src, audit.SourceOutcome{
				Status: audit.SourceSucceeded, Attempts: 1,
			}); err != nil {
				t.Errorf("MarkSource(%s) error = %v", src, err)
			}
		}(src)
	}
	wg.Wait()

	final, err := tr.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != audit.TaskStatusCompleted {
		t.Fatalf("expected completed after all sources succeed, got %s", final.Status)
	}
	for src, state := range final.Sources {
		if state.Status != audit.SourceSucceeded {
			t.Fatalf("source %s update lost: %+v", src, state)
		}
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	ctx := context.Background()
	task, _ := tr.Create(ctx, audit.AuditRequest{
		Domain:  "example.com",
		Sources: []audit.Source{audit.SourceKeywords},
	})

	// Not terminal yet.
	if _, err := tr.Finalize(ctx, task.ID, "records/x"); !errors.Is(err, audit.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := tr.MarkSource(ctx, task.ID, audit.SourceKeywords, audit.SourceOutcome{
		Status: audit.SourceSucceeded, Attempts: 1,
	}); err != nil {
		t.Fatalf("MarkSource() error = %v", err)
	}

	ref, err := tr.Finalize(ctx, task.ID, "records/x")
	if err != nil || ref != "records/x" {
		t.Fatalf("Finalize() = (%q, %v)", ref, err)
	}
	// Second call is a no-op returning the stored reference.
	ref, err = tr.Finalize(ctx, task.ID, "records/other")
	if err != nil || ref != "records/x" {
		t.Fatalf("repeat Finalize() = (%q, %v)", ref, err)
	}
}

func TestGetUnknownTask(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	if _, err := tr.Get(context.Background(), "missing"); !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
