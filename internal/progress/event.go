// Package progress defines the event structures emitted by the audit workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTaskStart   Stage = "TASK_START"
	StageTaskDone    Stage = "TASK_DONE"
	StageTaskError   Stage = "TASK_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceRetry Stage = "SOURCE_RETRY"
	StageSourceDone  Stage = "SOURCE_DONE"
)

// Event captures a single milestone of audit progress.
type Event struct {
	// TaskID uniquely identifies an audit task using the 16-byte UUID form.
	TaskID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or source milestone occurred.
	Stage Stage
	// Source scopes source events to one provider adapter.
	Source audit.Source
	// Domain is the audited host, attached for log sinks.
	Domain string
	// Success reports the outcome on SOURCE_DONE events.
	Success bool
	// ErrorKind carries the failure category on failed source events.
	ErrorKind audit.ErrorKind
	// Status carries the aggregate task status on TASK_DONE events.
	Status audit.TaskStatus
	// Dur captures execution latency for source fetches and task completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == [16]byte{} {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTaskStart, StageTaskError:
	case StageTaskDone:
		if e.Status == "" {
			return errors.New("task done requires status")
		}
	case StageSourceStart, StageSourceRetry:
		if !e.Source.Valid() {
			return errors.New("source event requires a known source")
		}
	case StageSourceDone:
		if !e.Source.Valid() {
			return errors.New("source event requires a known source")
		}
		if !e.Success && e.ErrorKind == "" {
			return errors.New("failed source done requires error kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// TaskUUID converts the binary task ID to uuid.UUID for repositories.
func (e Event) TaskUUID() uuid.UUID {
	return uuid.UUID(e.TaskID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseTaskID converts a string task id into the Event form. Unparseable
// ids come back zero, which Validate rejects.
func ParseTaskID(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(parsed)
}
