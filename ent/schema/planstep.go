package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PlanStep holds the schema definition for the PlanStep entity — one
// advisory entry of the Planner's ordered Plan. Read-only once created.
type PlanStep struct {
	ent.Schema
}

// Fields of the PlanStep.
func (PlanStep) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("plan_step_id").
			Unique().
			Immutable(),
		field.String("process_id").
			Immutable(),
		field.Int("index").
			Immutable().
			Comment("Position in the plan: 0, 1, 2..."),
		field.Enum("tool_kind").
			Values("API", "SQL", "API_SQL").
			Immutable(),
		field.String("entity").
			Immutable().
			Comment("Okta entity this step concerns, e.g. 'user', 'group'"),
		field.String("operation").
			Immutable().
			Comment("Candidate operation, e.g. 'list_group_members'"),
		field.Text("query_context").
			Immutable().
			Comment("Free-text context the planner attached to this step"),
		field.Bool("critical").
			Immutable().
			Default(false),
	}
}

// Edges of the PlanStep.
func (PlanStep) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("plan_steps").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the PlanStep.
func (PlanStep) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "index").
			Unique(),
	}
}
