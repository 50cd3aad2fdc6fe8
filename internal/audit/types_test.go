package audit

import (
	"context"
	"errors"
	"testing"
)

func TestTaskDeriveStatus(t *testing.T) {
	t.Parallel()

	mk := func(states ...SourceStatus) Task {
		task := Task{Sources: make(map[Source]SourceState)}
		all := AllSources()
		for i, st := range states {
			task.Sources[all[i]] = SourceState{Status: st}
		}
		return task
	}

	cases := []struct {
		name   string
		task   Task
		expect TaskStatus
	}{
		{"no sources", Task{}, TaskStatusPending},
		{"all pending", mk(SourcePending, SourcePending), TaskStatusPending},
		{"one running", mk(SourceRunning, SourcePending), TaskStatusRunning},
		{"partial progress", mk(SourceSucceeded, SourcePending), TaskStatusRunning},
		{"mixed done and running", mk(SourceSucceeded, SourceFailed, SourceRunning), TaskStatusRunning},
		{"all succeeded", mk(SourceSucceeded, SourceSucceeded), TaskStatusCompleted},
		{"all failed", mk(SourceFailed, SourceFailed), TaskStatusFailed},
		{"mixed terminal", mk(SourceSucceeded, SourceFailed), TaskStatusPartialFailure},
	}
	for _, tc := range cases {
		if got := tc.task.DeriveStatus(); got != tc.expect {
			t.Errorf("%s: DeriveStatus() = %s, want %s", tc.name, got, tc.expect)
		}
	}
}

func TestTaskCloneIsolation(t *testing.T) {
	t.Parallel()

	task := Task{
		ID:      "t1",
		Sources: map[Source]SourceState{SourceKeywords: {Status: SourcePending}},
	}
	cp := task.Clone()
	cp.Sources[SourceKeywords] = SourceState{Status: SourceFailed}
	if task.Sources[SourceKeywords].Status != SourcePending {
		t.Fatal("Clone() must not alias the sources map")
	}
}

func TestRequestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		in         AuditRequest
		wantDomain string
		wantSrcs   int
		wantErr    bool
	}{
		{"bare domain", AuditRequest{Domain: "Example.com"}, "example.com", 4, false},
		{"url form", AuditRequest{Domain: "https://www.Example.com/path?q=1"}, "example.com", 4, false},
		{"explicit sources deduped", AuditRequest{
			Domain:  "example.com",
			Sources: []Source{SourceKeywords, SourceKeywords, SourcePerformance},
		}, "example.com", 2, false},
		{"empty domain", AuditRequest{}, "", 0, true},
		{"no tld", AuditRequest{Domain: "localhost"}, "", 0, true},
		{"unknown source", AuditRequest{Domain: "example.com", Sources: []Source{"social"}}, "", 0, true},
	}
	for _, tc := range cases {
		got, err := tc.in.Normalize()
		if tc.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: Normalize() error = %v", tc.name, err)
			continue
		}
		if got.Domain != tc.wantDomain || len(got.Sources) != tc.wantSrcs {
			t.Errorf("%s: Normalize() = %+v", tc.name, got)
		}
	}
}

func TestNormalizeStableSourceOrder(t *testing.T) {
	t.Parallel()

	got, err := AuditRequest{
		Domain:  "example.com",
		Sources: []Source{SourcePerformance, SourceTechnical},
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Sources[0] != SourceTechnical || got.Sources[1] != SourcePerformance {
		t.Fatalf("expected canonical source order, got %v", got.Sources)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if got := Classify(context.DeadlineExceeded); got != ErrKindTimeout {
		t.Fatalf("deadline classified as %s", got)
	}
	srcErr := NewSourceError(SourceKeywords, ErrKindRateLimited, errors.New("429"))
	if got := Classify(srcErr); got != ErrKindRateLimited {
		t.Fatalf("source error classified as %s", got)
	}
	if got := Classify(errors.New("boom")); got != ErrKindUnknown {
		t.Fatalf("opaque error classified as %s", got)
	}
}

func TestErrorKindTransient(t *testing.T) {
	t.Parallel()

	transient := []ErrorKind{ErrKindNetwork, ErrKindRateLimited, ErrKindTimeout}
	for _, k := range transient {
		if !k.Transient() {
			t.Errorf("%s should be transient", k)
		}
	}
	terminal := []ErrorKind{ErrKindAuth, ErrKindInvalidResponse, ErrKindUnknown}
	for _, k := range terminal {
		if k.Transient() {
			t.Errorf("%s should not be transient", k)
		}
	}
}
