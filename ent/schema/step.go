package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Step holds the schema definition for the Step entity — one Code Library
// entry: a validated, Sandbox-executed code artifact plus its preview
// sample, column schema, and the reasoning that produced it.
type Step struct {
	ent.Schema
}

// Fields of the Step.
func (Step) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("step_id").
			Unique().
			Immutable().
			Comment("Monotonic per process, formatted as \"<process_id>:<n>\""),
		field.String("process_id").
			Immutable(),
		field.Int("sequence").
			Immutable().
			Comment("Monotonic per-process integer, never reused or reordered"),
		field.Enum("kind").
			Values("API", "SQL", "API_SQL").
			Immutable(),
		field.Text("code").
			Immutable().
			Comment("Validated source of the step; for kind=SQL this passed SQL Safety Validation"),
		field.JSON("sample_rows", []map[string]interface{}{}).
			Comment("At most preview_cap rows retained for final-script synthesis context"),
		field.JSON("column_schema", []ColumnSpec{}).
			Comment("Ordered list of column name + inferred type"),
		field.Int("record_count_observed").
			Comment("record_count_observed >= len(sample_rows)"),
		field.Int64("execution_ms"),
		field.Text("description"),
		field.Text("reasoning"),
		field.Time("stored_at").
			Default(time.Now).
			Immutable(),
	}
}

// ColumnSpec describes one observed output column.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Edges of the Step.
func (Step) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("steps").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Step.
func (Step) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "sequence").
			Unique(),
	}
}
