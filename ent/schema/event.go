package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity — a durable copy
// of one item on the per-process Event Bus, used for stream catch-up after
// a slow or reconnecting consumer. The sequence is gap-free and monotonic
// per process (enforced by the Event Bus, not by this schema).
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("process_id").
			Immutable(),
		field.Int("sequence_number").
			Immutable().
			Comment("Gap-free, monotonic per process"),
		field.Enum("event_type").
			Values(
				"plan_status",
				"phase_update",
				"step_plan_info",
				"step_status_update",
				"final_result",
				"plan_error",
				"plan_cancelled",
			).
			Immutable(),
		field.JSON("payload", map[string]interface{}{}).
			Comment("Typed payload serialized to its JSON view"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Event.
func (Event) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("events").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "sequence_number").
			Unique(),
	}
}
