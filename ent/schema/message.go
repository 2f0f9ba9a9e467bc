package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Message holds the schema definition for the Message entity — one turn
// of the ReAct Agent's running transcript (system/user/assistant/tool).
type Message struct {
	ent.Schema
}

// Fields of the Message.
func (Message) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("process_id").
			Immutable(),
		field.Int("sequence_number").
			Immutable().
			Comment("Process-scoped order"),
		field.Enum("role").
			Values("system", "user", "assistant", "tool").
			Immutable(),
		field.Text("content").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Message.
func (Message) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("process", Process.Type).
			Ref("messages").
			Field("process_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Message.
func (Message) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("process_id", "sequence_number"),
	}
}
