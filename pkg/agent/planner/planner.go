// Package planner implements the Planner Agent: a single reasoning-profile
// LLM call that proposes an ordered, advisory Plan before the ReAct Agent
// starts exploring. The Planner is allowed to fail open — a malformed or
// exhausted response degrades to an empty Plan rather than aborting the
// process, since the ReAct loop can always proceed on the user query
// alone.
//
// Grounded on pkg/agent/controller/synthesis.go's single-call structure
// (build messages, one Generate call, record usage) with the teacher's
// ReAct malformed-response retry policy from controller/react.go's
// GetFormatErrorFeedback path applied to a structured JSON contract
// instead of free-text ReAct syntax.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"context"
	"time"

	"github.com/oktareact/core/pkg/agent"
	"github.com/oktareact/core/pkg/catalog"
	"github.com/oktareact/core/pkg/events"
	"github.com/oktareact/core/pkg/llm"
	"github.com/oktareact/core/pkg/sqlschema"
)

// Config bounds one Planner Agent call.
type Config struct {
	MaxRetries  int
	CallTimeout time.Duration
}

// EventPublisher is the subset of *events.Bus the Planner needs.
type EventPublisher interface {
	Publish(ev events.Event) events.Event
}

// Run produces an advisory Plan for userQuery. On success it returns a
// non-nil Plan (possibly with zero steps, if the model legitimately found
// nothing to plan) and publishes plan_status. If every retry produces
// unparseable output, it publishes plan_error and still returns an empty
// Plan with a nil error — the Planner failing open, not the process.
func Run(
	ctx context.Context,
	gw llm.Gateway,
	ledger *llm.TokenLedger,
	publisher EventPublisher,
	processID string,
	userQuery string,
	readEndpoints []catalog.Operation,
	sqlTables []sqlschema.Table,
	history []llm.ConversationMessage,
	cfg Config,
) (*agent.Plan, error) {
	messages := buildMessages(userQuery, readEndpoints, sqlTables, history)

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		resp, err := generate(callCtx, gw, &llm.GenerateInput{
			ProcessID: processID,
			Profile:   "reasoning",
			Messages:  messages,
		})
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		ledger.RecordLLMCall("reasoning", resp.InputTokens, resp.OutputTokens)

		plan, perr := parsePlan(resp.Text)
		if perr == nil {
			publish(publisher, processID, events.KindPlanStatus, struct {
				Status    string `json:"status"`
				StepCount int    `json:"step_count"`
			}{Status: "generated", StepCount: len(plan.Steps)})
			return plan, nil
		}

		lastErr = perr
		messages = append(messages, llm.ConversationMessage{Role: llm.RoleAssistant, Content: resp.Text})
		messages = append(messages, llm.ConversationMessage{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[system] Your response could not be parsed as the required JSON plan: %v. Reply with ONLY the JSON object, no commentary.", perr),
		})
	}

	publish(publisher, processID, events.KindPlanError, struct {
		ErrorKind string `json:"error_kind"`
		Message   string `json:"message"`
	}{ErrorKind: "planner_exhausted", Message: fmt.Sprintf("planner failed open after %d attempts: %v", maxRetries, lastErr)})

	return &agent.Plan{}, nil
}

func publish(publisher EventPublisher, processID string, kind events.Kind, payload any) {
	if publisher == nil {
		return
	}
	publisher.Publish(events.NewEvent(processID, 0, kind, payload))
}

func buildMessages(userQuery string, readEndpoints []catalog.Operation, sqlTables []sqlschema.Table, history []llm.ConversationMessage) []llm.ConversationMessage {
	var sb strings.Builder
	sb.WriteString("You are the planning stage of an Okta tenant investigation agent. ")
	sb.WriteString("Given the user's question, the available read-only API operations, and the SQL schema, ")
	sb.WriteString("propose an ordered, advisory plan of steps. You MUST respond with ONLY a JSON object of the form:\n")
	sb.WriteString(`{"strategy":"...","steps":[{"tool_kind":"API|SQL|API_SQL","entity":"...","operation":"...","query_context":"...","critical":true|false}]}`)
	sb.WriteString("\nAn empty steps array is acceptable if no plan is warranted.\n\n## Available read-only API operations\n")
	for _, op := range readEndpoints {
		fmt.Fprintf(&sb, "- %s (%s %s): %s\n", op.ID, op.Method, op.Path, op.Summary)
	}
	sb.WriteString("\n## SQL Schema View\n")
	for _, t := range sqlTables {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Summary)
	}

	messages := []llm.ConversationMessage{{Role: llm.RoleSystem, Content: sb.String()}}
	messages = append(messages, history...)
	messages = append(messages, llm.ConversationMessage{Role: llm.RoleUser, Content: userQuery})
	return messages
}

type planStepWire struct {
	ToolKind     string `json:"tool_kind"`
	Entity       string `json:"entity"`
	Operation    string `json:"operation"`
	QueryContext string `json:"query_context"`
	Critical     bool   `json:"critical"`
}

type planWire struct {
	Strategy string         `json:"strategy"`
	Steps    []planStepWire `json:"steps"`
}

var validToolKinds = map[string]bool{"API": true, "SQL": true, "API_SQL": true}

// parsePlan decodes the model's JSON plan, tolerating a fenced code block
// since providers frequently wrap JSON in ```json ... ``` despite
// instructions not to.
func parsePlan(text string) (*agent.Plan, error) {
	trimmed := stripCodeFence(text)

	var wire planWire
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	steps := make([]agent.PlanStep, len(wire.Steps))
	for i, s := range wire.Steps {
		if !validToolKinds[s.ToolKind] {
			return nil, fmt.Errorf("step %d: tool_kind %q must be one of API, SQL, API_SQL", i, s.ToolKind)
		}
		if s.Entity == "" || s.Operation == "" {
			return nil, fmt.Errorf("step %d: entity and operation are required", i)
		}
		steps[i] = agent.PlanStep{
			Index: i, ToolKind: s.ToolKind, Entity: s.Entity,
			Operation: s.Operation, QueryContext: s.QueryContext, Critical: s.Critical,
		}
	}

	return &agent.Plan{Steps: steps, Strategy: wire.Strategy}, nil
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

type callResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

func generate(ctx context.Context, gw llm.Gateway, input *llm.GenerateInput) (*callResult, error) {
	ch, err := gw.Generate(ctx, input)
	if err != nil {
		return nil, err
	}
	var cr callResult
	for chunk := range ch {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			cr.Text += c.Content
		case *llm.UsageChunk:
			cr.InputTokens, cr.OutputTokens = c.InputTokens, c.OutputTokens
		case *llm.ErrorChunk:
			return nil, fmt.Errorf("%s", c.Message)
		}
	}
	return &cr, nil
}
