package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event. Job stages mirror the
// per-URL state machine: JOB_START → RENDER_DONE → (CONTACT_FOUND →
// CONTACT_DONE|CONTACT_ERROR)? → EXTRACT_DONE → JOB_DONE, or JOB_ERROR.
type Stage string

// Supported progress stages.
const (
	StageBatchStart   Stage = "BATCH_START"
	StageBatchDone    Stage = "BATCH_DONE"
	StageJobStart     Stage = "JOB_START"
	StageRenderDone   Stage = "RENDER_DONE"
	StageContactFound Stage = "CONTACT_FOUND"
	StageContactDone  Stage = "CONTACT_DONE"
	StageContactError Stage = "CONTACT_ERROR"
	StageExtractDone  Stage = "EXTRACT_DONE"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
)

// Lifecycle reports whether the stage opens or closes a batch or a job. The
// Hub never sheds lifecycle events; job counts and running gauges depend on them.
func (s Stage) Lifecycle() bool {
	switch s {
	case StageBatchStart, StageBatchDone, StageJobStart, StageJobDone, StageJobError:
		return true
	default:
		return false
	}
}

// Event captures a single step of batch progress.
type Event struct {
	// BatchID identifies the dispatcher run using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Index is the job's input position; unused for batch stages.
	Index int
	// URL is the page the job is working on (the contact URL for contact stages).
	URL string
	// Site is the lowercase host of URL.
	Site string
	// Bytes is the size of the rendered document for render stages.
	Bytes int64
	// Dur captures render latency or total job time.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
	// Dropped is set by the Hub on BATCH_DONE: intermediate events of this
	// batch shed under backpressure.
	Dropped int
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageJobStart, StageRenderDone, StageContactFound, StageContactDone,
		StageContactError, StageExtractDone, StageJobDone, StageJobError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
		if e.Index < 0 {
			return errors.New("index must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseBatchID decodes a textual UUID into the Event form.
func ParseBatchID(raw string) ([16]byte, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse batch id: %w", err)
	}
	return UUIDToBytes(id), nil
}

