package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LLMInteraction holds the schema definition for the LLMInteraction entity
// — full technical detail for one Chat Model Gateway call, and the unit
// the TokenLedger sums are reconstructed from.
type LLMInteraction struct {
	ent.Schema
}

// Fields of the LLMInteraction.
func (LLMInteraction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("interaction_id").
			Unique().
			Immutable(),
		field.String("process_id").
			Immutable(),
		field.Enum("profile").
			Values("reasoning", "coding").
			Immutable(),
		field.String("model_name").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.JSON("request", map[string]interface{}{}).
			Comment("Full provider request payload"),
		field.JSON("response", map[string]interface{}{}).
			Optional().
			Comment("Full provider response payload; absent on error"),
		field.Int("input_tokens").
			Default(0),
		field.Int("output_tokens").
			Default(0),
		field.Int64("duration_ms").
			Default(0),
		field.String("error_message").
			Optional().
			Nillable(),
	}
}

// Edges of the LLMInteraction.
func (LLMInteraction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("llm_interactions").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the LLMInteraction.
func (LLMInteraction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "created_at"),
	}
}
