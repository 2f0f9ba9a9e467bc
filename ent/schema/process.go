package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Process holds the schema definition for the Process entity — one
// end-to-end execution of a user's natural-language question about the
// Okta tenant.
type Process struct {
	ent.Schema
}

// Fields of the Process.
func (Process) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("process_id").
			Unique().
			Immutable(),
		field.Text("user_query").
			Immutable().
			Comment("The natural-language question that started this process"),
		field.Enum("status").
			Values("planning", "executing", "completed", "failed", "cancelled").
			Default("planning"),
		field.Bool("cancel_requested").
			Default(false),
		field.Time("started_at").
			Default(time.Now).
			Immutable(),
		field.Time("deadline").
			Comment("Overall wall-clock deadline for the process"),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("error_kind").
			Optional().
			Nillable().
			Comment("Stable error taxonomy value, set on terminal plan_error"),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Text("final_script").
			Optional().
			Nillable().
			Comment("The synthesized final script artifact, if emitted"),
		field.JSON("formatted_response", map[string]interface{}{}).
			Optional().
			Comment("The final_result payload delivered to the client"),
		field.Int("next_sequence").
			Default(0).
			Comment("Next Event.sequence_number to assign for this process"),
		field.Int("next_step_id").
			Default(1).
			Comment("Next Step.sequence to assign (monotonic, never reused)"),
	}
}

// Edges of the Process.
func (Process) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("plan_steps", PlanStep.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("steps", Step.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("tool_calls", ToolCallRecord.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("events", Event.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("messages", Message.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("llm_interactions", LLMInteraction.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Process.
func (Process) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("status", "started_at"),
	}
}

// Annotations for PostgreSQL-specific features.
func (Process) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
