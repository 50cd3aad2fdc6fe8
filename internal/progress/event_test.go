package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()

	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"task start ok", Event{TaskID: id, TS: now, Stage: StageTaskStart}, false},
		{"missing task id", Event{TS: now, Stage: StageTaskStart}, true},
		{"missing timestamp", Event{TaskID: id, Stage: StageTaskStart}, true},
		{"task done needs status", Event{TaskID: id, TS: now, Stage: StageTaskDone}, true},
		{"task done ok", Event{TaskID: id, TS: now, Stage: StageTaskDone, Status: audit.TaskStatusCompleted}, false},
		{"source start needs source", Event{TaskID: id, TS: now, Stage: StageSourceStart}, true},
		{"source start ok", Event{TaskID: id, TS: now, Stage: StageSourceStart, Source: audit.SourceBacklinks}, false},
		{"failed source done needs kind", Event{TaskID: id, TS: now, Stage: StageSourceDone, Source: audit.SourceKeywords}, true},
		{"failed source done ok", Event{TaskID: id, TS: now, Stage: StageSourceDone, Source: audit.SourceKeywords, ErrorKind: audit.ErrKindAuth}, false},
		{"successful source done ok", Event{TaskID: id, TS: now, Stage: StageSourceDone, Source: audit.SourceKeywords, Success: true}, false},
		{"unknown stage", Event{TaskID: id, TS: now, Stage: Stage("BOGUS")}, true},
		{"negative duration", Event{TaskID: id, TS: now, Stage: StageTaskStart, Dur: -time.Second}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseTaskID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	if got := ParseTaskID(id.String()); got != UUIDToBytes(id) {
		t.Fatalf("round trip mismatch: %v", got)
	}
	if got := ParseTaskID("not-a-uuid"); got != ([16]byte{}) {
		t.Fatalf("expected zero id, got %v", got)
	}
}
