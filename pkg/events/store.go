package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oktareact/core/ent"
	"github.com/oktareact/core/ent/event"
)

// Store persists published events for durable catch-up, the way the Event
// ent schema's doc comment describes. A Bus is purely in-memory; Store is
// what survives a reconnect after the buffer has rolled events out.
type Store struct {
	client *ent.Client
}

// NewStore wraps an Ent client. client may be nil to disable persistence
// (tests, or an in-memory-only deployment).
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// Persist writes ev durably. Failures are logged, not returned — a
// persistence hiccup must never stall the live stream, only degrade
// catch-up for reconnecting clients.
func (s *Store) Persist(ctx context.Context, ev Event) {
	if s.client == nil {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		slog.Warn("event payload was not a JSON object", "process_id", ev.ProcessID, "seq", ev.Seq, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.Event.Create().
		SetID(fmt.Sprintf("%s:%d", ev.ProcessID, ev.Seq)).
		SetProcessID(ev.ProcessID).
		SetSequenceNumber(ev.Seq).
		SetEventType(string(ev.Kind)).
		SetPayload(payload).
		Save(ctx)
	if err != nil {
		slog.Warn("failed to persist event", "process_id", ev.ProcessID, "seq", ev.Seq, "error", err)
	}
}

// Catchup loads every durably-stored event for processID with sequence
// greater than sinceSeq, for clients reconnecting after the in-memory
// Bus's buffer has rolled past what they last saw.
func (s *Store) Catchup(ctx context.Context, processID string, sinceSeq int) ([]Event, error) {
	if s.client == nil {
		return nil, nil
	}

	rows, err := s.client.Event.Query().
		Where(
			event.ProcessIDEQ(processID),
			event.SequenceNumberGT(sinceSeq),
		).
		Order(ent.Asc(event.FieldSequenceNumber)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query catchup events: %w", err)
	}

	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			continue
		}
		out = append(out, Event{
			ProcessID: r.ProcessID,
			Seq:       r.SequenceNumber,
			Kind:      Kind(r.EventType),
			Timestamp: r.CreatedAt,
			Payload:   payload,
		})
	}
	return out, nil
}
