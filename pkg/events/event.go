// Package events implements the Event Bus: a single-producer/multi-consumer
// bounded queue per process, delivering the typed event taxonomy to
// streaming clients (SSE, with a WebSocket upgrade fallback) while
// preserving sequence order. On overflow, progress-only deltas are
// collapsed (latest-wins); structural events are never dropped.
//
// Grounded on pkg/events/manager.go's ConnectionManager: the
// snapshot-then-send broadcast pattern (copy connection pointers under a
// lock, then write outside it) and the catch-up-from-database idiom are
// kept; the cross-pod Postgres LISTEN/NOTIFY propagation is dropped since
// one process's events are only ever produced by the single Supervisor
// goroutine that owns it, not fanned in from other pods.
package events

import (
	"encoding/json"
	"time"
)

// Kind enumerates the event taxonomy on the stream.
type Kind string

const (
	KindPlanStatus       Kind = "plan_status"
	KindPhaseUpdate      Kind = "phase_update"
	KindStepPlanInfo     Kind = "step_plan_info"
	KindStepStatusUpdate Kind = "step_status_update"
	KindFinalResult      Kind = "final_result"
	KindPlanError        Kind = "plan_error"
	KindPlanCancelled    Kind = "plan_cancelled"
)

// terminal reports whether a Kind ends the stream.
func (k Kind) terminal() bool {
	return k == KindFinalResult || k == KindPlanError || k == KindPlanCancelled
}

// Event is one item on a process's stream. Payload is kind-specific and
// carried as already-marshaled JSON so the Bus never needs to know the
// shape of every event kind.
type Event struct {
	ProcessID string          `json:"process_id"`
	Seq       int             `json:"seq"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`

	// stepIndex is the payload's step_index for step_status_update events
	// (zero for every other kind) and drives the overflow collapse rule: when
	// the buffer is full, a progress-only update replaces the newest buffered
	// event if that event is a progress-only update for the same step.
	stepIndex int
	// progressOnly marks a step_status_update whose only change from the
	// previously-buffered update for the same step is the progress
	// percentage/details — the part the collapse rule is allowed to drop.
	progressOnly bool
}

// StepStatusPayload mirrors the step_status_update shape (§6).
type StepStatusPayload struct {
	StepIndex                 int    `json:"step_index"`
	Status                    string `json:"status"` // running, completed, error
	OperationStatus           string `json:"operation_status,omitempty"`
	ResultSummary             string `json:"result_summary,omitempty"`
	SubprocessProgressPercent *int   `json:"subprocessProgressPercent,omitempty"`
	SubprocessProgressDetails string `json:"subprocessProgressDetails,omitempty"`
	RateLimitInfo             string `json:"rateLimitInfo,omitempty"`
	DurationMS                int64  `json:"duration,omitempty"`
	RecordCount               int    `json:"recordCount,omitempty"`
	InputTokens               int    `json:"inputTokens,omitempty"`
	OutputTokens              int    `json:"outputTokens,omitempty"`
	ErrorMessage              string `json:"errorMessage,omitempty"`
}

// NewStepStatusUpdate builds a step_status_update Event. progressOnly must
// be true only when nothing besides the progress fields changed from the
// step's previously emitted update — callers computing a pure progress
// tick (no status/result/error change) pass true so the Bus is free to
// collapse it under backpressure.
func NewStepStatusUpdate(processID string, seq int, p StepStatusPayload, progressOnly bool) Event {
	payload, _ := json.Marshal(p)
	return Event{
		ProcessID:    processID,
		Seq:          seq,
		Kind:         KindStepStatusUpdate,
		Timestamp:    time.Now(),
		Payload:      payload,
		stepIndex:    p.StepIndex,
		progressOnly: progressOnly,
	}
}

// NewEvent builds any other event kind from an arbitrary payload.
func NewEvent(processID string, seq int, kind Kind, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{ProcessID: processID, Seq: seq, Kind: kind, Timestamp: time.Now(), Payload: data}
}
