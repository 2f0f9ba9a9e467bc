// Package codelibrary implements the Code Library: an append-only,
// per-process arena of validated Sandbox-executed Steps, indexed by a
// monotonic sequence number. Entries live in memory for the lifetime of the
// process (the ReAct loop and Relation Analysis both read back through the
// arena, not through the database) and are flushed to the Step Ent table
// for durability as each one is stored.
//
// Grounded on pkg/services/stage_service.go's create-then-persist idiom
// (validate request fields, derive a timeout context, Save via the Ent
// client, wrap errors), applied to an in-memory map instead of a pure
// database round trip so step lookups during a single process don't pay a
// query per tool call.
package codelibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oktareact/core/ent"
	entschema "github.com/oktareact/core/ent/schema"
)

// ColumnSpec mirrors ent/schema's Step.ColumnSpec JSON shape.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Entry is one stored Step, held in memory and mirrored to Postgres.
type Entry struct {
	Sequence            int
	Kind                string // API, SQL, API_SQL
	Code                string
	SampleRows          []map[string]any
	ColumnSchema        []ColumnSpec
	RecordCountObserved int
	ExecutionMS         int64
	Description         string
	Reasoning           string
	StoredAt            time.Time
}

// ErrNotFound is returned when a referenced step_id doesn't exist.
var ErrNotFound = fmt.Errorf("step not found")

// ErrOversized is returned by Store when sampleRows exceeds previewCap.
var ErrOversized = fmt.Errorf("sample_rows exceeds preview_cap")

// ErrOversizedBytes is returned by Store when the serialized payload
// exceeds maxStoredBytes. The message is written to guide the model
// toward trimming rather than retrying the identical call.
var ErrOversizedBytes = fmt.Errorf("stored payload exceeds max_stored_bytes_per_step; trim sample_rows or narrow selected columns")

// Library is the per-process, append-only arena of Steps.
type Library struct {
	processID      string
	client         *ent.Client
	previewCap     int
	maxStoredBytes int64

	mu      sync.RWMutex
	entries []*Entry
}

// New creates an empty Library scoped to one process. client may be nil in
// tests that don't need the durable half. maxStoredBytes bounds the
// serialized size of a single Store call's payload (spec's
// max_stored_bytes_per_step); zero or negative disables the check.
func New(processID string, client *ent.Client, previewCap int, maxStoredBytes int64) *Library {
	return &Library{processID: processID, client: client, previewCap: previewCap, maxStoredBytes: maxStoredBytes}
}

// Store appends a validated Step. Invariant: sequence numbers are assigned
// strictly increasing starting at 1, and prior entries are never mutated or
// removed — callers only ever see a longer arena, never a changed one.
func (l *Library) Store(ctx context.Context, kind, code string, sampleRows []map[string]any, columnSchema []ColumnSpec, recordCount int, executionMS int64, description, reasoning string) (*Entry, error) {
	if len(sampleRows) > l.previewCap {
		return nil, ErrOversized
	}
	if recordCount < len(sampleRows) {
		return nil, fmt.Errorf("record_count_observed (%d) cannot be less than len(sample_rows) (%d)", recordCount, len(sampleRows))
	}
	if l.maxStoredBytes > 0 {
		if payload, err := json.Marshal(sampleRows); err == nil && int64(len(payload)) > l.maxStoredBytes {
			return nil, ErrOversizedBytes
		}
	}

	l.mu.Lock()
	seq := len(l.entries) + 1
	entry := &Entry{
		Sequence:            seq,
		Kind:                kind,
		Code:                code,
		SampleRows:          sampleRows,
		ColumnSchema:        columnSchema,
		RecordCountObserved: recordCount,
		ExecutionMS:         executionMS,
		Description:         description,
		Reasoning:           reasoning,
		StoredAt:            time.Now(),
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.client != nil {
		if err := l.flush(ctx, entry); err != nil {
			return entry, fmt.Errorf("step stored in memory but failed to persist: %w", err)
		}
	}

	return entry, nil
}

func (l *Library) flush(ctx context.Context, e *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	columnSchema := make([]entschema.ColumnSpec, len(e.ColumnSchema))
	for i, c := range e.ColumnSchema {
		columnSchema[i] = entschema.ColumnSpec{Name: c.Name, Type: c.Type}
	}

	_, err := l.client.Step.Create().
		SetID(fmt.Sprintf("%s:%d", l.processID, e.Sequence)).
		SetProcessID(l.processID).
		SetSequence(e.Sequence).
		SetKind(e.Kind).
		SetCode(e.Code).
		SetSampleRows(e.SampleRows).
		SetColumnSchema(columnSchema).
		SetRecordCountObserved(e.RecordCountObserved).
		SetExecutionMs(e.ExecutionMS).
		SetDescription(e.Description).
		SetReasoning(e.Reasoning).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("persist step %d: %w", e.Sequence, err)
	}
	return nil
}

// Get returns the entry for the given sequence number (1-indexed, matching
// how the ReAct loop and code artifacts reference prior results as
// step_N).
func (l *Library) Get(sequence int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sequence < 1 || sequence > len(l.entries) {
		return nil, ErrNotFound
	}
	return l.entries[sequence-1], nil
}

// All returns a snapshot of every stored entry, in sequence order, for
// final-script synthesis and Relation Analysis.
func (l *Library) All() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored steps.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
