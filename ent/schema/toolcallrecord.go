package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ToolCallRecord holds the schema definition for the ToolCallRecord entity
// — a durable record of one Tool Surface invocation by the ReAct Agent.
type ToolCallRecord struct {
	ent.Schema
}

// Fields of the ToolCallRecord.
func (ToolCallRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tool_call_id").
			Unique().
			Immutable(),
		field.String("process_id").
			Immutable(),
		field.String("name").
			Immutable().
			Comment("One of the closed Tool Surface names"),
		field.JSON("arguments", map[string]interface{}{}).
			Optional(),
		field.Time("started_at").
			Immutable(),
		field.Time("ended_at").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("ok", "error", "timeout").
			Default("ok"),
		field.String("error_kind").
			Optional().
			Nillable(),
		field.Int("input_tokens").
			Default(0),
		field.Int("output_tokens").
			Default(0),
	}
}

// Edges of the ToolCallRecord.
func (ToolCallRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("tool_calls").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ToolCallRecord.
func (ToolCallRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "started_at"),
	}
}
